// Package webhook はLINE Webhookの署名検証・パース・非同期処理を提供する
package webhook

import (
	sdk "github.com/line/line-bot-sdk-go/v8/linebot/webhook"
)

// SignatureHeader は署名が入るリクエストヘッダー
const SignatureHeader = "X-Line-Signature"

// VerifySignature は署名ヘッダーが生の body と一致するか検証する
// secret か署名が空なら常に false
func VerifySignature(secret string, body []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	return sdk.ValidateSignature(secret, signature, body)
}
