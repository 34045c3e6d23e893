package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput          = errors.New("invalid input")
	ErrMalformedPayload      = errors.New("malformed payload")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrForbidden             = errors.New("forbidden")
	ErrNotFound              = errors.New("resource not found")
	ErrDuplicate             = errors.New("duplicate")
	ErrDuplicateReferral     = fmt.Errorf("pending referral already exists for this email: %w", ErrDuplicate)
	ErrInvalidSignature      = errors.New("invalid webhook signature")
	ErrMissingSignature      = errors.New("missing webhook signature or secret")
	ErrGatewayFailure        = errors.New("payment gateway failure")
	ErrGatewayNotConfigured  = errors.New("payment gateway not configured")
	ErrCodeSpaceExhausted    = errors.New("referral code space exhausted")
	ErrInvalidTransition     = errors.New("invalid status transition")
	ErrIdempotencyConflict   = errors.New("idempotency conflict")
	ErrRateLimitExceeded     = errors.New("rate limit exceeded")
	ErrStorageUnavailable    = errors.New("storage unavailable")
	ErrDependencyUnavailable = errors.New("dependency unavailable")
)

// GatewayError carries the upstream status and reason of a failed gateway call.
// StatusCode is zero when the request never got a response.
type GatewayError struct {
	StatusCode int
	Code       string
	Reason     string
}

func (e *GatewayError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("payment gateway unreachable: %s", e.Reason)
	}
	return fmt.Sprintf("payment gateway returned %d: %s", e.StatusCode, e.Reason)
}

func (e *GatewayError) Unwrap() error { return ErrGatewayFailure }

type CodeSpaceExhaustedError struct {
	Attempts int
}

func (e *CodeSpaceExhaustedError) Error() string {
	return fmt.Sprintf("no unique referral code after %d attempts", e.Attempts)
}

func (e *CodeSpaceExhaustedError) Unwrap() error { return ErrCodeSpaceExhausted }

// Persistence wraps a store failure as retryable unless it is already a domain error.
func Persistence(err error) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{ErrNotFound, ErrDuplicate, ErrInvalidInput, ErrStorageUnavailable, ErrInvalidTransition, ErrForbidden} {
		if errors.Is(err, known) {
			return err
		}
	}
	return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
}
