package apperrors

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		expectedType  Type
		wantRetryable bool
	}{
		{
			name:          "検証エラー",
			err:           NewValidationError("to", "must be 10-100 characters"),
			expectedType:  TypeValidation,
			wantRetryable: false,
		},
		{
			name:          "ラップされた検証エラー",
			err:           fmt.Errorf("send: %w", NewValidationError("text", "too long")),
			expectedType:  TypeValidation,
			wantRetryable: false,
		},
		{
			name:          "文言のみの検証エラー",
			err:           errors.New("invalid recipient id"),
			expectedType:  TypeValidation,
			wantRetryable: false,
		},
		{
			name:          "503はサーバーエラーで再試行可能",
			err:           &APIError{Op: "push", StatusCode: 503, Body: "unavailable"},
			expectedType:  TypeServer,
			wantRetryable: true,
		},
		{
			name:          "500はサーバーエラーで再試行可能",
			err:           &APIError{Op: "push", StatusCode: 500},
			expectedType:  TypeServer,
			wantRetryable: true,
		},
		{
			name:          "429はレート制限で再試行可能",
			err:           &APIError{Op: "push", StatusCode: 429},
			expectedType:  TypeRateLimit,
			wantRetryable: true,
		},
		{
			name:          "400は再試行しない",
			err:           &APIError{Op: "push", StatusCode: 400, Body: `{"message":"The request body has 1 error(s)"}`},
			expectedType:  TypeClient,
			wantRetryable: false,
		},
		{
			name:          "本文に validation を含んでもステータスを優先",
			err:           &APIError{Op: "push", StatusCode: 502, Body: "validation proxy failed"},
			expectedType:  TypeServer,
			wantRetryable: true,
		},
		{
			name:          "401は認証エラー",
			err:           &APIError{Op: "push", StatusCode: 401, Body: "Authentication failed"},
			expectedType:  TypeAuthentication,
			wantRetryable: false,
		},
		{
			name:          "接続拒否はネットワークエラー",
			err:           &NetworkError{Op: "push", Err: syscall.ECONNREFUSED},
			expectedType:  TypeNetwork,
			wantRetryable: true,
		},
		{
			name:          "タイムアウト",
			err:           &NetworkError{Op: "push", Err: context.DeadlineExceeded},
			expectedType:  TypeTimeout,
			wantRetryable: true,
		},
		{
			name:          "素の ECONNRESET",
			err:           fmt.Errorf("dial: %w", syscall.ECONNRESET),
			expectedType:  TypeNetwork,
			wantRetryable: true,
		},
		{
			name:          "文言のみの接続エラー",
			err:           errors.New("dial tcp 127.0.0.1:443: connect: connection refused"),
			expectedType:  TypeNetwork,
			wantRetryable: true,
		},
		{
			name:          "認証キーワード",
			err:           errors.New("invalid token supplied"),
			expectedType:  TypeAuthentication,
			wantRetryable: false,
		},
		{
			name:          "設定エラー",
			err:           &ConfigurationError{Missing: []string{"LINE_CHANNEL_SECRET"}},
			expectedType:  TypeConfiguration,
			wantRetryable: false,
		},
		{
			name:          "不明なエラー",
			err:           errors.New("something odd"),
			expectedType:  TypeUnknown,
			wantRetryable: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := Classify(tt.err)

			assert.Equal(t, tt.expectedType, info.Type)
			assert.Equal(t, tt.wantRetryable, info.IsRetryable)
			assert.Equal(t, tt.wantRetryable, IsRetryable(tt.err))
			assert.NotEmpty(t, info.FriendlyMessage)
			assert.NotEmpty(t, info.SuggestedAction)
			assert.NotEmpty(t, info.Code)
		})
	}
}

func TestClassify_APIErrorDetails(t *testing.T) {
	err := &APIError{Op: "push", StatusCode: 503, Body: "busy", RequestID: "req-1"}

	info := Classify(err)

	assert.Equal(t, "LINE_API_503", info.Code)
	assert.Equal(t, 503, info.Details["status"])
	assert.Equal(t, "req-1", info.Details["requestId"])
	assert.NotContains(t, info.FriendlyMessage, "busy")
}

func TestClassify_FriendlyMessageDoesNotLeakToken(t *testing.T) {
	err := &APIError{Op: "push", StatusCode: 401, Body: "Bearer secret-token-value is invalid"}

	info := Classify(err)

	assert.NotContains(t, info.FriendlyMessage, "secret-token-value")
	assert.NotContains(t, info.SuggestedAction, "secret-token-value")
}

func TestErrorsIs(t *testing.T) {
	assert.ErrorIs(t, NewValidationError("to", "empty"), ErrValidation)
	assert.ErrorIs(t, &APIError{StatusCode: 500}, ErrAPI)
	assert.ErrorIs(t, &APIError{StatusCode: 401}, ErrAuthentication)
	assert.NotErrorIs(t, &APIError{StatusCode: 500}, ErrAuthentication)
	assert.ErrorIs(t, &NetworkError{Op: "push", Err: errors.New("eof")}, ErrNetwork)
	assert.ErrorIs(t, &ConfigurationError{}, ErrConfiguration)
}

func TestClassify_Nil(t *testing.T) {
	info := Classify(nil)
	assert.Equal(t, TypeUnknown, info.Type)
	assert.False(t, IsRetryable(nil))
}
