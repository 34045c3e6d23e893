package security

import (
	"errors"
	"testing"
	"time"

	"github.com/viralforge/mesh/services/financial-rails/M92-payment-attribution-service/internal/domain"
	"github.com/viralforge/mesh/services/financial-rails/M92-payment-attribution-service/internal/ports"
)

func TestJWTRoundTrip(t *testing.T) {
	t.Parallel()
	auth, err := NewJWTAuthenticator("jwt-secret", "viralforge")
	if err != nil {
		t.Fatalf("new authenticator: %v", err)
	}
	token, err := auth.Sign(ports.AuthClaims{UserID: "user-1", Role: "affiliate", ExpiresAt: time.Now().Add(time.Hour)})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	claims, err := auth.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.UserID != "user-1" || claims.Role != "affiliate" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestJWTRejectsExpiredAndForeignTokens(t *testing.T) {
	t.Parallel()
	auth, _ := NewJWTAuthenticator("jwt-secret", "viralforge")
	other, _ := NewJWTAuthenticator("another-secret", "viralforge")

	expired, _ := auth.Sign(ports.AuthClaims{UserID: "user-1", ExpiresAt: time.Now().Add(-time.Hour)})
	if _, err := auth.Verify(expired); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected expired token to be unauthorized, got %v", err)
	}
	foreign, _ := other.Sign(ports.AuthClaims{UserID: "user-1", ExpiresAt: time.Now().Add(time.Hour)})
	if _, err := auth.Verify(foreign); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected foreign token to be unauthorized, got %v", err)
	}
	if _, err := auth.Verify("not-a-token"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected garbage to be unauthorized, got %v", err)
	}
}

func TestNewJWTAuthenticatorRequiresSecret(t *testing.T) {
	t.Parallel()
	if _, err := NewJWTAuthenticator(" ", ""); err == nil {
		t.Fatalf("expected error for empty secret")
	}
}
