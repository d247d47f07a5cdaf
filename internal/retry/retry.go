// Package retry はLINE API呼び出しの指数バックオフ付き再試行を提供する
package retry

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"github.com/morinonusi421/nexustrade-line/internal/apperrors"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = time.Second
	DefaultMaxDelay    = 30 * time.Second

	// jitterRatio は遅延に加える揺らぎの上限（±12.5%）
	jitterRatio = 0.125
)

// OnRetry は再試行の直前に呼ばれる
// attempt は失敗した試行の番号（1始まり）、delay は次の試行までの待機時間
type OnRetry func(attempt int, delay time.Duration, info apperrors.Info)

// Operation は再試行対象の処理
type Operation func(ctx context.Context, attempt int) error

// Retrier は再試行ポリシー
// 処理の中身は知らず、渡されたコールバックを呼ぶだけ
type Retrier struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	random      func() float64
	sleep       func(ctx context.Context, d time.Duration) error
}

// Option は Retrier の設定を変更する
type Option func(*Retrier)

// WithMaxAttempts は最大試行回数を設定する
func WithMaxAttempts(n int) Option {
	return func(r *Retrier) {
		if n > 0 {
			r.maxAttempts = n
		}
	}
}

// WithBaseDelay は初回の待機時間を設定する
func WithBaseDelay(d time.Duration) Option {
	return func(r *Retrier) {
		if d > 0 {
			r.baseDelay = d
		}
	}
}

// WithMaxDelay は待機時間の上限を設定する
func WithMaxDelay(d time.Duration) Option {
	return func(r *Retrier) {
		if d > 0 {
			r.maxDelay = d
		}
	}
}

// WithRandom はジッター計算用の乱数源（[0,1)）を差し替える
func WithRandom(f func() float64) Option {
	return func(r *Retrier) {
		if f != nil {
			r.random = f
		}
	}
}

// WithSleep は待機処理を差し替える（テスト用）
func WithSleep(f func(ctx context.Context, d time.Duration) error) Option {
	return func(r *Retrier) {
		if f != nil {
			r.sleep = f
		}
	}
}

// New は Retrier を作成する
func New(opts ...Option) *Retrier {
	r := &Retrier{
		maxAttempts: DefaultMaxAttempts,
		baseDelay:   DefaultBaseDelay,
		maxDelay:    DefaultMaxDelay,
		random:      rand.Float64,
		sleep:       sleepContext,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// MaxAttempts は設定済みの最大試行回数を返す
func (r *Retrier) MaxAttempts() int {
	return r.maxAttempts
}

// Backoff は attempt 回目の失敗後に待つ時間を返す
//
//	delay = base * 2^(attempt-1) * multiplier(errorType) * (1 ± 12.5%)、上限 maxDelay
func (r *Retrier) Backoff(attempt int, errorType apperrors.Type) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(r.baseDelay) * math.Pow(2, float64(attempt-1)) * multiplier(errorType)
	jitter := (r.random()*2 - 1) * jitterRatio
	delay *= 1 + jitter

	if delay > float64(r.maxDelay) {
		delay = float64(r.maxDelay)
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// Do は op を最大 maxAttempts 回実行する
//
// 成功、再試行不可のエラー、試行回数の上限、ctx の期限切れのいずれかで終了する。
// 失敗時は最後のエラーをそのまま返す。戻り値の int は実際の試行回数。
func (r *Retrier) Do(ctx context.Context, op Operation, onRetry OnRetry) (int, error) {
	return r.DoN(ctx, r.maxAttempts, op, onRetry)
}

// DoN は試行回数の上限を呼び出しごとに指定して Do を実行する
func (r *Retrier) DoN(ctx context.Context, maxAttempts int, op Operation, onRetry OnRetry) (int, error) {
	if maxAttempts <= 0 {
		maxAttempts = r.maxAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return attempt - 1, lastErr
			}
			return attempt - 1, err
		}

		err := op(ctx, attempt)
		if err == nil {
			return attempt, nil
		}
		lastErr = err

		info := apperrors.Classify(err)
		if !info.IsRetryable || attempt == maxAttempts {
			return attempt, err
		}

		delay := r.Backoff(attempt, info.Type)
		if onRetry != nil {
			onRetry(attempt, delay, info)
		}
		if err := r.sleep(ctx, delay); err != nil {
			return attempt, lastErr
		}
	}
	return maxAttempts, lastErr
}

func multiplier(t apperrors.Type) float64 {
	switch t {
	case apperrors.TypeNetwork:
		return 1.5
	case apperrors.TypeTimeout:
		return 2.0
	case apperrors.TypeServer:
		return 1.2
	default:
		return 1.0
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
