package model

import (
	"time"

	"github.com/aarondl/null/v8"
)

// TimeLayout はDBに保存する時刻の書式
const TimeLayout = time.RFC3339

// Follower はボットを友だち追加したユーザー
// UnfollowedAt が空のあいだは一斉送信の対象になる
type Follower struct {
	UserID       string
	DisplayName  null.String
	FollowedAt   string
	UnfollowedAt null.String
}

// NewFollower は followedAt 時点で友だち追加したユーザーを作成する
// 表示名が空なら未設定として扱う
func NewFollower(userID, displayName string, followedAt time.Time) *Follower {
	return &Follower{
		UserID:      userID,
		DisplayName: null.NewString(displayName, displayName != ""),
		FollowedAt:  followedAt.UTC().Format(TimeLayout),
	}
}

// IsActive はブロックされていない場合trueを返す
func (f *Follower) IsActive() bool {
	return !f.UnfollowedAt.Valid
}

// Name は表示名を返す。未設定なら fallback
func (f *Follower) Name(fallback string) string {
	if f.DisplayName.Valid && f.DisplayName.String != "" {
		return f.DisplayName.String
	}
	return fallback
}
