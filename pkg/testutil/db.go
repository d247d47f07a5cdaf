package testutil

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/morinonusi421/nexustrade-line/pkg/database"
)

// SetupTestDB はテスト用のデータベースをセットアップする
// 一時ディレクトリに作成し、マイグレーション適用済みの接続を返す
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, _, err := database.InitDB(dbPath)
	if err != nil {
		t.Fatalf("Failed to set up test database: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	return db
}
