package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/viralforge/mesh/services/financial-rails/M92-payment-attribution-service/internal/application"
	"github.com/viralforge/mesh/services/financial-rails/M92-payment-attribution-service/internal/contracts"
	"github.com/viralforge/mesh/services/financial-rails/M92-payment-attribution-service/internal/domain"
)

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req contracts.CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json body")
		return
	}
	in := application.CreateOrderInput{
		AmountMinor: req.Amount,
		Currency:    req.Currency,
		Customer: domain.Customer{
			Name:    req.CustomerDetails.Name,
			Email:   req.CustomerDetails.Email,
			Phone:   req.CustomerDetails.Phone,
			Company: req.CustomerDetails.Company,
			TaxID:   req.CustomerDetails.TaxID,
		},
		IdempotencyKey: strings.TrimSpace(r.Header.Get("Idempotency-Key")),
	}
	if req.ReferralCode != nil {
		in.ReferralCode = *req.ReferralCode
	}
	out, err := h.service.CreateOrder(r.Context(), in)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, contracts.CreateOrderResponse{
		Success:  true,
		ID:       out.ID,
		Amount:   out.Amount,
		Currency: out.Currency,
		Key:      out.Key,
	})
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.service.GetOrder(r.Context(), chi.URLParam(r, "order_id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, contracts.OrderStatusResponse{
		ID:       order.OrderID,
		Amount:   order.AmountMinor,
		Currency: order.Currency,
		Status:   string(order.Status),
	})
}

// paymentWebhook must see the body exactly as sent; it is never decoded
// before the signature check.
func (h *Handler) paymentWebhook(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxWebhookBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "webhook body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "MALFORMED_PAYLOAD", "unreadable body")
		return
	}
	res, err := h.service.HandleWebhook(r.Context(), application.WebhookInput{
		RawBody:   raw,
		Signature: strings.TrimSpace(r.Header.Get(h.signatureHeader)),
		EventID:   strings.TrimSpace(r.Header.Get(eventIDHeader)),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	w.Header().Set("X-Webhook-Outcome", string(res.Outcome))
	writeJSON(w, http.StatusOK, contracts.WebhookResponse{Status: "ok"})
}

func (h *Handler) adminGetInvoice(w http.ResponseWriter, r *http.Request) {
	inv, err := h.service.GetInvoice(r.Context(), actorFromContext(r.Context()), chi.URLParam(r, "order_id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, contracts.InvoiceResponse{
		Number:    inv.Number,
		OrderID:   inv.OrderID,
		PaymentID: inv.PaymentID,
		Currency:  inv.Currency,
		Subtotal:  inv.SubtotalMinor,
		TaxRate:   inv.TaxRatePercent,
		Tax:       inv.TaxMinor,
		Total:     inv.TotalMinor,
		Status:    string(inv.Status),
		IssuedAt:  formatTimestamp(inv.IssuedAt),
	})
}

func (h *Handler) adminGetInvoicePDF(w http.ResponseWriter, r *http.Request) {
	doc, err := h.service.RenderInvoicePDF(r.Context(), actorFromContext(r.Context()), chi.URLParam(r, "order_id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeFile(w, doc.FileName, doc.ContentType, doc.Body)
}
