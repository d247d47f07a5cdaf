package database

import (
	"database/sql"
	"embed"
	"fmt"

	migrate "github.com/rubenv/sql-migrate"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// migrationDialect は sql-migrate のSQLite方言名（ドライバ名とは別）
const migrationDialect = "sqlite3"

// InitDB はデータベース接続を初期化し、未適用のマイグレーションを実行する
// 戻り値の int は今回適用したマイグレーション数
func InitDB(dbPath string) (*sql.DB, int, error) {
	// データベース接続
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, 0, err
	}
	// SQLiteは書き込みが1本なので接続も1本にする
	db.SetMaxOpenConns(1)

	// 接続確認
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, 0, err
	}

	// 外部キー制約を有効化
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, 0, err
	}

	applied, err := Migrate(db)
	if err != nil {
		db.Close()
		return nil, 0, err
	}
	return db, applied, nil
}

// Migrate は埋め込みのマイグレーションを適用する
func Migrate(db *sql.DB) (int, error) {
	n, err := migrate.Exec(db, migrationDialect, migrationSource(), migrate.Up)
	if err != nil {
		return 0, fmt.Errorf("apply migrations: %w", err)
	}
	return n, nil
}

// Rollback は直近 steps 件のマイグレーションを戻す
func Rollback(db *sql.DB, steps int) (int, error) {
	n, err := migrate.ExecMax(db, migrationDialect, migrationSource(), migrate.Down, steps)
	if err != nil {
		return 0, fmt.Errorf("rollback migrations: %w", err)
	}
	return n, nil
}

func migrationSource() migrate.MigrationSource {
	return &migrate.EmbedFileSystemMigrationSource{
		FileSystem: migrationFS,
		Root:       "migrations",
	}
}
