package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// SignHMAC returns the lowercase hex HMAC-SHA256 of body, sent as X-Signature.
func SignHMAC(secret string, body []byte) string {
	return hex.EncodeToString(sum(secret, body))
}

// VerifyHMAC checks an X-Signature value against the raw body. Receivers of
// harborplan webhooks can use it directly.
func VerifyHMAC(secret string, body []byte, provided string) bool {
	b, err := hex.DecodeString(provided)
	if err != nil {
		return false
	}
	return hmac.Equal(sum(secret, body), b)
}

func sum(secret string, body []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return mac.Sum(nil)
}
