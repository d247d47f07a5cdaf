package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/morinonusi421/nexustrade-line/internal/apperrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// noSleep は待機せずに記録だけ行う
type noSleep struct {
	delays []time.Duration
}

func (n *noSleep) sleep(ctx context.Context, d time.Duration) error {
	n.delays = append(n.delays, d)
	return ctx.Err()
}

func fixedRandom(v float64) func() float64 {
	return func() float64 { return v }
}

func TestRetrier_Do_SucceedsOnThirdAttempt(t *testing.T) {
	sleeper := &noSleep{}
	r := New(WithMaxAttempts(3), WithSleep(sleeper.sleep), WithRandom(fixedRandom(0.5)))

	calls := 0
	var retried []int
	attempts, err := r.Do(context.Background(), func(ctx context.Context, attempt int) error {
		calls++
		if calls < 3 {
			return &apperrors.APIError{Op: "push", StatusCode: 503}
		}
		return nil
	}, func(attempt int, delay time.Duration, info apperrors.Info) {
		retried = append(retried, attempt)
		assert.Equal(t, apperrors.TypeServer, info.Type)
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []int{1, 2}, retried)
	assert.Len(t, sleeper.delays, 2)
}

func TestRetrier_Do_ReturnsOriginalErrorAfterMaxAttempts(t *testing.T) {
	sleeper := &noSleep{}
	r := New(WithMaxAttempts(3), WithSleep(sleeper.sleep))

	original := &apperrors.APIError{Op: "push", StatusCode: 503, Body: "down"}
	calls := 0
	attempts, err := r.Do(context.Background(), func(ctx context.Context, attempt int) error {
		calls++
		return original
	}, nil)

	require.Error(t, err)
	assert.Same(t, original, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, attempts)
}

func TestRetrier_Do_DoesNotRetryNonRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "400", err: &apperrors.APIError{Op: "push", StatusCode: 400}},
		{name: "401", err: &apperrors.APIError{Op: "push", StatusCode: 401}},
		{name: "検証エラー", err: apperrors.NewValidationError("to", "empty")},
		{name: "設定エラー", err: &apperrors.ConfigurationError{}},
		{name: "不明なエラー", err: errors.New("boom")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sleeper := &noSleep{}
			r := New(WithSleep(sleeper.sleep))

			calls := 0
			attempts, err := r.Do(context.Background(), func(ctx context.Context, attempt int) error {
				calls++
				return tt.err
			}, func(int, time.Duration, apperrors.Info) {
				t.Fatal("onRetry must not be called")
			})

			assert.Equal(t, tt.err, err)
			assert.Equal(t, 1, calls)
			assert.Equal(t, 1, attempts)
			assert.Empty(t, sleeper.delays)
		})
	}
}

func TestRetrier_Do_StopsAtDeadline(t *testing.T) {
	r := New(WithMaxAttempts(5), WithBaseDelay(50*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	calls := 0
	_, err := r.Do(ctx, func(ctx context.Context, attempt int) error {
		calls++
		return &apperrors.NetworkError{Op: "push", Err: errors.New("connection reset by peer")}
	}, nil)

	var netErr *apperrors.NetworkError
	assert.ErrorAs(t, err, &netErr)
	assert.Equal(t, 1, calls)
}

func TestRetrier_Do_CancelledBeforeFirstAttempt(t *testing.T) {
	r := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	attempts, err := r.Do(ctx, func(ctx context.Context, attempt int) error {
		calls++
		return nil
	}, nil)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, attempts)
	assert.Equal(t, 0, calls)
}

func TestRetrier_DoN_OverridesMaxAttempts(t *testing.T) {
	sleeper := &noSleep{}
	r := New(WithMaxAttempts(3), WithSleep(sleeper.sleep))

	calls := 0
	attempts, err := r.DoN(context.Background(), 5, func(ctx context.Context, attempt int) error {
		calls++
		return &apperrors.APIError{Op: "push", StatusCode: 429}
	}, nil)

	assert.Error(t, err)
	assert.Equal(t, 5, calls)
	assert.Equal(t, 5, attempts)
}

func TestRetrier_Backoff(t *testing.T) {
	// random=0.5 でジッターは0になる
	r := New(WithBaseDelay(time.Second), WithMaxDelay(30*time.Second), WithRandom(fixedRandom(0.5)))

	tests := []struct {
		name      string
		attempt   int
		errorType apperrors.Type
		expected  time.Duration
	}{
		{name: "1回目 既定倍率", attempt: 1, errorType: apperrors.TypeRateLimit, expected: time.Second},
		{name: "2回目 既定倍率", attempt: 2, errorType: apperrors.TypeUnknown, expected: 2 * time.Second},
		{name: "1回目 ネットワーク", attempt: 1, errorType: apperrors.TypeNetwork, expected: 1500 * time.Millisecond},
		{name: "2回目 タイムアウト", attempt: 2, errorType: apperrors.TypeTimeout, expected: 4 * time.Second},
		{name: "3回目 サーバー", attempt: 3, errorType: apperrors.TypeServer, expected: 4800 * time.Millisecond},
		{name: "上限で頭打ち", attempt: 10, errorType: apperrors.TypeServer, expected: 30 * time.Second},
		{name: "0回目は1回目扱い", attempt: 0, errorType: apperrors.TypeUnknown, expected: time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, r.Backoff(tt.attempt, tt.errorType))
		})
	}
}

func TestRetrier_Backoff_JitterBounds(t *testing.T) {
	low := New(WithBaseDelay(time.Second), WithRandom(fixedRandom(0)))
	high := New(WithBaseDelay(time.Second), WithRandom(fixedRandom(0.999999)))

	assert.Equal(t, 875*time.Millisecond, low.Backoff(1, apperrors.TypeUnknown))

	d := high.Backoff(1, apperrors.TypeUnknown)
	assert.LessOrEqual(t, d, 1125*time.Millisecond)
	assert.Greater(t, d, 1124*time.Millisecond)
}
