package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/morinonusi421/nexustrade-line/pkg/httputil"
)

// AuthMiddleware は内部API用の Bearer トークンを検証するミドルウェア
type AuthMiddleware struct {
	token string
}

func NewAuthMiddleware(token string) *AuthMiddleware {
	return &AuthMiddleware{
		token: token,
	}
}

// Authenticate は認証を行うミドルウェア関数
// トークンが未設定の場合は内部APIを無効にする
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.token == "" {
			writeAuthError(w, http.StatusServiceUnavailable, "API_DISABLED", "内部APIは無効です", "API_TOKEN を設定してください。")
			return
		}

		// Authorization ヘッダーからトークン取得
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeAuthError(w, http.StatusUnauthorized, "UNAUTHORIZED", "認証が必要です", "Authorization ヘッダーを付けてください。")
			return
		}

		// "Bearer {token}" 形式からトークン抽出
		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == authHeader { // Bearer プレフィックスがない
			writeAuthError(w, http.StatusUnauthorized, "UNAUTHORIZED", "無効な認証形式です", "Bearer 形式で指定してください。")
			return
		}

		if subtle.ConstantTimeCompare([]byte(token), []byte(m.token)) != 1 {
			Logger(r.Context(), nil).WithField("remote_addr", r.RemoteAddr).Warn("API token mismatch")
			writeAuthError(w, http.StatusUnauthorized, "UNAUTHORIZED", "認証に失敗しました", "APIトークンを確認してください。")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeAuthError(w http.ResponseWriter, status int, code, msg, action string) {
	httputil.WriteJSONError(w, status, map[string]any{
		"success": false,
		"error": map[string]string{
			"type":            "authentication",
			"code":            code,
			"message":         msg,
			"suggestedAction": action,
		},
	})
}

