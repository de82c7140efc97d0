package chapa

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// VerifySignature checks the webhook signature header against an
// HMAC-SHA256 digest of the exact payload bytes. The header may carry
// the raw hex digest or the digest prefixed with "sha256=". Comparison
// is constant-time. Any mismatch or oddity yields false, never an error.
func VerifySignature(payload []byte, signature, secret string) bool {
	if signature == "" || secret == "" {
		return false
	}

	signature = strings.TrimPrefix(signature, "sha256=")

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(signature), []byte(expected))
}
