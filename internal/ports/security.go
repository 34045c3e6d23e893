package ports

import "time"

type SignatureVerifier interface {
	Verify(rawBody []byte, signature string) error
}

type AuthClaims struct {
	UserID    string
	Role      string
	ExpiresAt time.Time
}

type TokenVerifier interface {
	Verify(raw string) (AuthClaims, error)
}
