package apperrors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// 通知モジュール全体で使用するセンチネルエラー
var (
	// ErrValidation は入力値の検証に失敗した場合のエラー
	ErrValidation = errors.New("validation error")

	// ErrAPI はLINE APIが2xx以外を返した場合のエラー
	ErrAPI = errors.New("line api error")

	// ErrNetwork は接続レベルで失敗した場合のエラー
	ErrNetwork = errors.New("network error")

	// ErrAuthentication はアクセストークンが無効な場合のエラー
	ErrAuthentication = errors.New("authentication error")

	// ErrConfiguration はチャネルトークン・シークレットが未設定の場合のエラー
	ErrConfiguration = errors.New("line messaging is not configured")
)

// ValidationError は検証エラーの詳細を含む
type ValidationError struct {
	Field  string
	Reason string
}

// NewValidationError は ValidationError を作成する
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

// Is implements error comparison for errors.Is()
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// APIError はLINE APIの非2xxレスポンスを表す
// HTTP呼び出しを行う境界（internal/linebot）でのみ生成される
type APIError struct {
	Op         string
	StatusCode int
	Body       string
	RequestID  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("line api %s: status %d: %s", e.Op, e.StatusCode, e.Body)
}

// Is implements error comparison for errors.Is()
func (e *APIError) Is(target error) bool {
	if target == ErrAPI {
		return true
	}
	return target == ErrAuthentication && (e.StatusCode == 401 || e.StatusCode == 403)
}

// NetworkError はレスポンスを受け取れなかった呼び出しを表す
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("line api %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for errors.Is()
func (e *NetworkError) Is(target error) bool {
	return target == ErrNetwork
}

// Timeout はタイムアウトによる失敗かどうかを返す
func (e *NetworkError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(e.Err, &netErr) && netErr.Timeout() {
		return true
	}
	return strings.Contains(strings.ToLower(e.Err.Error()), "timeout")
}

// AuthenticationError はトークン検証の失敗を表す
type AuthenticationError struct {
	Reason string
}

func (e *AuthenticationError) Error() string {
	return "authentication failed: " + e.Reason
}

// Is implements error comparison for errors.Is()
func (e *AuthenticationError) Is(target error) bool {
	return target == ErrAuthentication
}

// ConfigurationError は必須設定の欠落を表す
type ConfigurationError struct {
	Missing []string
}

func (e *ConfigurationError) Error() string {
	if len(e.Missing) == 0 {
		return ErrConfiguration.Error()
	}
	return fmt.Sprintf("%s: missing %s", ErrConfiguration.Error(), strings.Join(e.Missing, ", "))
}

// Is implements error comparison for errors.Is()
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}
