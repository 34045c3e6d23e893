package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/viralforge/mesh/services/financial-rails/M92-payment-attribution-service/internal/application"
	"github.com/viralforge/mesh/services/financial-rails/M92-payment-attribution-service/internal/ports"
)

const (
	defaultSignatureHeader = "X-Razorpay-Signature"
	eventIDHeader          = "X-Razorpay-Event-Id"
	defaultMaxWebhookBytes = 1 << 20
)

type Options struct {
	Tokens          ports.TokenVerifier
	SignatureHeader string
	MaxWebhookBytes int64
	Logger          *slog.Logger
	// Metrics is mounted on /metrics when set.
	Metrics http.Handler
	// Ready backs /readyz; nil means always ready.
	Ready func(ctx context.Context) error
}

type Handler struct {
	service         *application.Service
	tokens          ports.TokenVerifier
	signatureHeader string
	maxWebhookBytes int64
	logger          *slog.Logger
	metrics         http.Handler
	ready           func(ctx context.Context) error
}

func NewHandler(service *application.Service, opts Options) *Handler {
	if opts.SignatureHeader == "" {
		opts.SignatureHeader = defaultSignatureHeader
	}
	if opts.MaxWebhookBytes <= 0 {
		opts.MaxWebhookBytes = defaultMaxWebhookBytes
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Handler{
		service:         service,
		tokens:          opts.Tokens,
		signatureHeader: opts.SignatureHeader,
		maxWebhookBytes: opts.MaxWebhookBytes,
		logger:          opts.Logger,
		metrics:         opts.Metrics,
		ready:           opts.Ready,
	}
}

func NewRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(handler.recoverMiddleware)
	r.Use(handler.loggingMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeSuccess(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", handler.readyz)
	if handler.metrics != nil {
		r.Method(http.MethodGet, "/metrics", handler.metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/orders", handler.createOrder)
		r.Get("/orders/{order_id}", handler.getOrder)
		r.Post("/webhooks/payments", handler.paymentWebhook)

		r.Group(func(r chi.Router) {
			r.Use(handler.authMiddleware)
			r.Post("/affiliates", handler.registerAffiliate)
			r.Get("/affiliates/me", handler.getMyAffiliate)
			r.Post("/affiliates/me/referral-code", handler.regenerateReferralCode)
			r.Post("/referrals", handler.submitReferral)
			r.Get("/referrals", handler.listReferrals)
			r.Get("/commissions", handler.listCommissions)
			r.Get("/commissions/export", handler.exportCommissions)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(handler.authMiddleware)
			r.Put("/affiliates/{affiliate_id}/status", handler.adminSetAffiliateStatus)
			r.Put("/commissions/{commission_id}/status", handler.adminSetCommissionStatus)
			r.Get("/orders/{order_id}/invoice", handler.adminGetInvoice)
			r.Get("/orders/{order_id}/invoice.pdf", handler.adminGetInvoicePDF)
		})
	})
	return r
}

func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil {
		if err := h.ready(r.Context()); err != nil {
			h.logger.WarnContext(r.Context(), "readiness check failed",
				"module", "http.router",
				"layer", "adapter",
				"operation", "readyz",
				"outcome", "failure",
				"error", err,
			)
			writeError(w, http.StatusServiceUnavailable, "NOT_READY", "dependencies unavailable")
			return
		}
	}
	writeSuccess(w, http.StatusOK, map[string]string{"status": "ready"})
}
