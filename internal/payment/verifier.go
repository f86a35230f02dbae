// internal/payment/verifier.go
package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// Verifier は決済プロバイダの署名を検証します。
// これが偽造された受講登録を防ぐ唯一のトラストバウンダリで、
// ここが true を返さない限り有料の Enrollment は作られない。
type Verifier struct {
	keySecret     string
	webhookSecret string
}

func NewVerifier(keySecret, webhookSecret string) *Verifier {
	return &Verifier{
		keySecret:     keySecret,
		webhookSecret: webhookSecret,
	}
}

// VerifySignature は決済確認リクエストの署名を検証します。
// 期待値は HMAC-SHA256(keySecret, "orderID|paymentID") の16進表現。
// 秘密鍵未設定や入力不備では false を返すだけで、決して panic しない。
func (v *Verifier) VerifySignature(orderID, paymentID, signature string) bool {
	if v.keySecret == "" || orderID == "" || paymentID == "" || signature == "" {
		return false
	}
	expected := computeHMAC(v.keySecret, []byte(orderID+"|"+paymentID))
	return constantTimeEqualHex(expected, signature)
}

// VerifyWebhookSignature はWebhookの署名を生のリクエストボディに対して検証します。
func (v *Verifier) VerifyWebhookSignature(body []byte, signature string) bool {
	if v.webhookSecret == "" || len(body) == 0 || signature == "" {
		return false
	}
	expected := computeHMAC(v.webhookSecret, body)
	return constantTimeEqualHex(expected, signature)
}

func computeHMAC(secret string, message []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(message)
	return hex.EncodeToString(mac.Sum(nil))
}

// constantTimeEqualHex は長さが同じ場合のみ定数時間比較を行う
func constantTimeEqualHex(expected, supplied string) bool {
	if len(expected) != len(supplied) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(supplied)) == 1
}
