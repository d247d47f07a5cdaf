package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/morinonusi421/nexustrade-line/internal/model"
)

// FollowerRepository は友だち登録者のデータアクセス層のインターフェース
type FollowerRepository interface {
	Upsert(ctx context.Context, follower *model.Follower) error
	MarkUnfollowed(ctx context.Context, userID string, at time.Time) error
	FindByUserID(ctx context.Context, userID string) (*model.Follower, error)
	ListActiveIDs(ctx context.Context) ([]string, error)
	CountActive(ctx context.Context) (int, error)
}

type followerRepository struct {
	db *sql.DB
}

// NewFollowerRepository は FollowerRepository の新しいインスタンスを作成する
func NewFollowerRepository(db *sql.DB) FollowerRepository {
	return &followerRepository{db: db}
}

// Upsert は友だち追加を記録する
// 再追加の場合はブロック状態を解除し、表示名は新しい値があるときだけ更新する
func (r *followerRepository) Upsert(ctx context.Context, f *model.Follower) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO followers (user_id, display_name, followed_at, unfollowed_at)
		VALUES (?, ?, ?, NULL)
		ON CONFLICT(user_id) DO UPDATE SET
		  display_name = COALESCE(excluded.display_name, followers.display_name),
		  followed_at = excluded.followed_at,
		  unfollowed_at = NULL`,
		f.UserID, f.DisplayName, f.FollowedAt,
	)
	return err
}

// MarkUnfollowed はブロックされた時刻を記録する
// 未登録のユーザーは何もしない
func (r *followerRepository) MarkUnfollowed(ctx context.Context, userID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE followers SET unfollowed_at = ? WHERE user_id = ?",
		at.UTC().Format(model.TimeLayout), userID,
	)
	return err
}

// FindByUserID は LINE ユーザーID で検索する
func (r *followerRepository) FindByUserID(ctx context.Context, userID string) (*model.Follower, error) {
	var f model.Follower
	err := r.db.QueryRowContext(ctx,
		"SELECT user_id, display_name, followed_at, unfollowed_at FROM followers WHERE user_id = ?",
		userID,
	).Scan(&f.UserID, &f.DisplayName, &f.FollowedAt, &f.UnfollowedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // 見つからない場合は nil を返す
		}
		return nil, err
	}
	return &f, nil
}

// ListActiveIDs はブロックされていないユーザーのIDを友だち追加順に返す
func (r *followerRepository) ListActiveIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT user_id FROM followers WHERE unfollowed_at IS NULL ORDER BY followed_at, user_id",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CountActive はブロックされていないユーザー数を返す
func (r *followerRepository) CountActive(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM followers WHERE unfollowed_at IS NULL").Scan(&n)
	return n, err
}
