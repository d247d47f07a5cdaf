package apperrors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"syscall"
)

// Type はエラーの分類
type Type string

const (
	TypeValidation     Type = "validation"
	TypeNetwork        Type = "network"
	TypeTimeout        Type = "timeout"
	TypeAuthentication Type = "authentication"
	TypeConfiguration  Type = "configuration"
	TypeRateLimit      Type = "rate_limit"
	TypeServer         Type = "server"
	TypeClient         Type = "client"
	TypeUnknown        Type = "unknown"
)

// Info は分類済みのエラー情報
// FriendlyMessage はユーザーに表示してよい文言で、トークンやレスポンス本文を含まない
type Info struct {
	Type            Type           `json:"type"`
	Code            string         `json:"code"`
	Message         string         `json:"message"`
	FriendlyMessage string         `json:"friendlyMessage"`
	IsRetryable     bool           `json:"isRetryable"`
	SuggestedAction string         `json:"suggestedAction"`
	Details         map[string]any `json:"details,omitempty"`
}

type metadata struct {
	code            string
	retryable       bool
	friendlyMessage string
	suggestedAction string
}

var metadataByType = map[Type]metadata{
	TypeValidation: {
		code:            "VALIDATION_ERROR",
		retryable:       false,
		friendlyMessage: "入力内容に誤りがあります。",
		suggestedAction: "送信先IDとメッセージ内容を確認してください。",
	},
	TypeNetwork: {
		code:            "NETWORK_ERROR",
		retryable:       true,
		friendlyMessage: "LINEサーバーに接続できませんでした。",
		suggestedAction: "しばらく待ってから再度お試しください。",
	},
	TypeTimeout: {
		code:            "TIMEOUT",
		retryable:       true,
		friendlyMessage: "LINEサーバーの応答がタイムアウトしました。",
		suggestedAction: "しばらく待ってから再度お試しください。",
	},
	TypeAuthentication: {
		code:            "AUTHENTICATION_ERROR",
		retryable:       false,
		friendlyMessage: "LINE連携の認証に失敗しました。",
		suggestedAction: "チャネルアクセストークンを再発行して設定を更新してください。",
	},
	TypeConfiguration: {
		code:            "CONFIGURATION_ERROR",
		retryable:       false,
		friendlyMessage: "LINE通知が設定されていません。",
		suggestedAction: "LINE_CHANNEL_ACCESS_TOKEN と LINE_CHANNEL_SECRET を設定してください。",
	},
	TypeRateLimit: {
		code:            "RATE_LIMITED",
		retryable:       true,
		friendlyMessage: "送信が混み合っています。",
		suggestedAction: "時間をおいて再送してください。",
	},
	TypeServer: {
		code:            "LINE_SERVER_ERROR",
		retryable:       true,
		friendlyMessage: "LINE側で一時的な障害が発生しています。",
		suggestedAction: "しばらく待ってから再度お試しください。",
	},
	TypeClient: {
		code:            "LINE_REQUEST_REJECTED",
		retryable:       false,
		friendlyMessage: "LINEがリクエストを受け付けませんでした。",
		suggestedAction: "送信先がボットを友だち追加しているか確認してください。",
	},
	TypeUnknown: {
		code:            "UNKNOWN_ERROR",
		retryable:       false,
		friendlyMessage: "予期しないエラーが発生しました。",
		suggestedAction: "問題が続く場合は管理者に連絡してください。",
	},
}

var (
	validationPatterns = []string{"validation", "invalid recipient", "invalid message", "invalid template"}
	networkPatterns    = []string{"connection refused", "connection reset", "broken pipe", "no such host", "network is unreachable", "unexpected eof"}
	timeoutPatterns    = []string{"timeout", "timed out", "deadline exceeded"}
	authPatterns       = []string{"unauthorized", "invalid token", "authentication", "access token"}
	configPatterns     = []string{"not configured", "configuration", "channel secret", "channel token"}
)

// Classify はエラーを分類して Info を返す
//
// 判定順: 検証エラー → APIレスポンス → ネットワーク → 認証 → 設定 → 不明
func Classify(err error) Info {
	if err == nil {
		return newInfo(TypeUnknown, "", nil)
	}
	msg := strings.ToLower(err.Error())

	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		details := map[string]any{}
		if validationErr.Field != "" {
			details["field"] = validationErr.Field
		}
		return newInfo(TypeValidation, err.Error(), details)
	}

	// APIError は本文にどんな文字列を含んでもステータスで判定する
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return classifyAPIError(apiErr)
	}

	if containsAny(msg, validationPatterns) {
		return newInfo(TypeValidation, err.Error(), nil)
	}

	if t, ok := classifyNetwork(err, msg); ok {
		return newInfo(t, err.Error(), nil)
	}

	var authErr *AuthenticationError
	if errors.As(err, &authErr) || containsAny(msg, authPatterns) {
		return newInfo(TypeAuthentication, err.Error(), nil)
	}

	var configErr *ConfigurationError
	if errors.As(err, &configErr) || containsAny(msg, configPatterns) {
		details := map[string]any{}
		if configErr != nil && len(configErr.Missing) > 0 {
			details["missing"] = configErr.Missing
		}
		return newInfo(TypeConfiguration, err.Error(), details)
	}

	return newInfo(TypeUnknown, err.Error(), nil)
}

// IsRetryable は err が再試行可能かどうかを返す
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return Classify(err).IsRetryable
}

func classifyAPIError(e *APIError) Info {
	var t Type
	switch {
	case e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden:
		t = TypeAuthentication
	case e.StatusCode == http.StatusTooManyRequests:
		t = TypeRateLimit
	case e.StatusCode >= 500:
		t = TypeServer
	case e.StatusCode >= 400:
		t = TypeClient
	default:
		t = TypeUnknown
	}

	info := newInfo(t, e.Error(), map[string]any{
		"status": e.StatusCode,
		"op":     e.Op,
	})
	info.Code = fmt.Sprintf("LINE_API_%d", e.StatusCode)
	if e.RequestID != "" {
		info.Details["requestId"] = e.RequestID
	}
	if e.Body != "" {
		info.Details["body"] = truncate(e.Body, 500)
	}
	return info
}

func classifyNetwork(err error, msg string) (Type, bool) {
	var networkErr *NetworkError
	if errors.As(err, &networkErr) {
		if networkErr.Timeout() {
			return TypeTimeout, true
		}
		return TypeNetwork, true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return TypeTimeout, true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return TypeTimeout, true
		}
		return TypeNetwork, true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return TypeNetwork, true
	}
	if containsAny(msg, timeoutPatterns) {
		return TypeTimeout, true
	}
	if containsAny(msg, networkPatterns) {
		return TypeNetwork, true
	}
	return "", false
}

func newInfo(t Type, message string, details map[string]any) Info {
	meta, ok := metadataByType[t]
	if !ok {
		meta = metadataByType[TypeUnknown]
	}
	if details == nil {
		details = map[string]any{}
	}
	return Info{
		Type:            t,
		Code:            meta.code,
		Message:         message,
		FriendlyMessage: meta.friendlyMessage,
		IsRetryable:     meta.retryable,
		SuggestedAction: meta.suggestedAction,
		Details:         details,
	}
}

func containsAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
