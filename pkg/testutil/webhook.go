package testutil

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
)

// SignWebhook はLINEと同じ方式（HMAC-SHA256をbase64）で body に署名する
// テストでWebhookリクエストを作るときに使う
func SignWebhook(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
