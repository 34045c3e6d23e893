package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/viralforge/mesh/services/financial-rails/M92-payment-attribution-service/internal/contracts"
	"github.com/viralforge/mesh/services/financial-rails/M92-payment-attribution-service/internal/domain"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeSuccess(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, contracts.SuccessResponse{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, contracts.ErrorResponse{Success: false, Code: code, Error: message})
}

func writeDomainError(w http.ResponseWriter, err error) {
	status, code, msg := mapDomainError(err)
	writeError(w, status, code, msg)
}

func writeFile(w http.ResponseWriter, name, contentType string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func mapDomainError(err error) (int, string, string) {
	var gwErr *domain.GatewayError
	switch {
	case errors.Is(err, domain.ErrMissingSignature):
		return http.StatusBadRequest, "MISSING_SIGNATURE", "missing webhook signature"
	case errors.Is(err, domain.ErrInvalidSignature):
		return http.StatusUnauthorized, "INVALID_SIGNATURE", "invalid webhook signature"
	case errors.Is(err, domain.ErrMalformedPayload):
		return http.StatusBadRequest, "MALFORMED_PAYLOAD", err.Error()
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, "VALIDATION_ERROR", err.Error()
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, "UNAUTHORIZED", "invalid or missing credentials"
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, "FORBIDDEN", err.Error()
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", err.Error()
	case errors.Is(err, domain.ErrDuplicateReferral):
		return http.StatusConflict, "DUPLICATE_REFERRAL", "a pending referral already exists for this email"
	case errors.Is(err, domain.ErrDuplicate):
		return http.StatusConflict, "DUPLICATE", err.Error()
	case errors.Is(err, domain.ErrIdempotencyConflict):
		return http.StatusConflict, "IDEMPOTENCY_CONFLICT", err.Error()
	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict, "INVALID_TRANSITION", err.Error()
	case errors.Is(err, domain.ErrRateLimitExceeded):
		return http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", err.Error()
	case errors.Is(err, domain.ErrGatewayNotConfigured):
		return http.StatusInternalServerError, "GATEWAY_NOT_CONFIGURED", "payment gateway is not configured"
	case errors.As(err, &gwErr):
		return http.StatusBadGateway, "GATEWAY_ERROR", gwErr.Reason
	case errors.Is(err, domain.ErrGatewayFailure):
		return http.StatusBadGateway, "GATEWAY_ERROR", err.Error()
	case errors.Is(err, domain.ErrCodeSpaceExhausted),
		errors.Is(err, domain.ErrStorageUnavailable),
		errors.Is(err, domain.ErrDependencyUnavailable):
		return http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "service unavailable"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error"
	}
}
