package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/viralforge/mesh/services/financial-rails/M92-payment-attribution-service/internal/domain"
)

// HMACVerifier checks gateway webhook signatures: lowercase hex of
// HMAC-SHA256(secret, raw body).
type HMACVerifier struct {
	secret []byte
}

func NewHMACVerifier(secret string) *HMACVerifier {
	return &HMACVerifier{secret: []byte(secret)}
}

func (v *HMACVerifier) Verify(rawBody []byte, signature string) error {
	return verify(v.secret, rawBody, signature)
}

// VerifySignature verifies the exact bytes received. Callers must not
// re-serialize the body before verification.
func VerifySignature(secret string, rawBody []byte, signature string) error {
	return verify([]byte(secret), rawBody, signature)
}

func Sign(secret string, rawBody []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(rawBody)
	return hex.EncodeToString(mac.Sum(nil))
}

func verify(secret, rawBody []byte, signature string) error {
	signature = strings.TrimSpace(signature)
	if len(secret) == 0 || signature == "" {
		return domain.ErrMissingSignature
	}
	got, err := hex.DecodeString(strings.ToLower(signature))
	if err != nil {
		return domain.ErrInvalidSignature
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(rawBody)
	if !hmac.Equal(mac.Sum(nil), got) {
		return domain.ErrInvalidSignature
	}
	return nil
}
