// Package dedupe は再送されたWebhookイベントを webhookEventId で除外する
package dedupe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultTTL はイベントIDを覚えておく期間
	DefaultTTL = 24 * time.Hour

	keyPrefix = "nexustrade:line:webhook-event:"
)

type cmdable interface {
	Ping(context.Context) *redis.StatusCmd
	SetNX(context.Context, string, any, time.Duration) *redis.BoolCmd
	Del(context.Context, ...string) *redis.IntCmd
}

// Guard は処理済みイベントIDをRedisに記録する
// nil の *Guard は何も除外しない
type Guard struct {
	store cmdable
	ttl   time.Duration
}

// NewGuard は store を使う Guard を作成する
func NewGuard(store cmdable, ttl time.Duration) *Guard {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Guard{store: store, ttl: ttl}
}

// Connect は redisURL に接続して Guard を作成する
// 返される *redis.Client は呼び出し側で Close する
func Connect(ctx context.Context, redisURL string, ttl time.Duration) (*Guard, *redis.Client, error) {
	if redisURL == "" {
		return nil, nil, errors.New("redis url is required")
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewGuard(client, ttl), client, nil
}

// Seen はイベントIDを記録し、すでに記録済みだった場合 true を返す
// IDが空のイベントは判定できないので常に false
func (g *Guard) Seen(ctx context.Context, eventID string) (bool, error) {
	if g == nil || g.store == nil || eventID == "" {
		return false, nil
	}
	set, err := g.store.SetNX(ctx, keyPrefix+eventID, "1", g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("set webhook event key: %w", err)
	}
	return !set, nil
}

// Forget は記録を消す。処理を受け付けられなかったイベントを再送で処理させるために使う
func (g *Guard) Forget(ctx context.Context, eventID string) error {
	if g == nil || g.store == nil || eventID == "" {
		return nil
	}
	return g.store.Del(ctx, keyPrefix+eventID).Err()
}

// Ping は接続を確認する
func (g *Guard) Ping(ctx context.Context) error {
	if g == nil || g.store == nil {
		return nil
	}
	return g.store.Ping(ctx).Err()
}
