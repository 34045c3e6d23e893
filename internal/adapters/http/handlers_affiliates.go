package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/viralforge/mesh/services/financial-rails/M92-payment-attribution-service/internal/application"
	"github.com/viralforge/mesh/services/financial-rails/M92-payment-attribution-service/internal/contracts"
	"github.com/viralforge/mesh/services/financial-rails/M92-payment-attribution-service/internal/domain"
)

func (h *Handler) registerAffiliate(w http.ResponseWriter, r *http.Request) {
	var req contracts.RegisterAffiliateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json body")
		return
	}
	aff, err := h.service.RegisterAffiliate(r.Context(), actorFromContext(r.Context()), application.RegisterAffiliateInput{
		FirmName: req.FirmName, ContactName: req.ContactName, ContactEmail: req.ContactEmail, Phone: req.Phone,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, toAffiliateResponse(aff))
}

func (h *Handler) getMyAffiliate(w http.ResponseWriter, r *http.Request) {
	aff, err := h.service.GetMyAffiliate(r.Context(), actorFromContext(r.Context()))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, toAffiliateResponse(aff))
}

func (h *Handler) regenerateReferralCode(w http.ResponseWriter, r *http.Request) {
	aff, err := h.service.RegenerateReferralCode(r.Context(), actorFromContext(r.Context()))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, toAffiliateResponse(aff))
}

func (h *Handler) submitReferral(w http.ResponseWriter, r *http.Request) {
	var req contracts.SubmitReferralRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json body")
		return
	}
	ref, err := h.service.SubmitReferral(r.Context(), actorFromContext(r.Context()), application.SubmitReferralInput{
		ReferredEmail: req.ReferredEmail,
		ReferredName:  req.ReferredName,
		FirmName:      req.FirmName,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, contracts.SubmitReferralResponse{Success: true, Referral: toReferralResponse(ref)})
}

func (h *Handler) listReferrals(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.ListReferrals(r.Context(), actorFromContext(r.Context()))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := make([]contracts.ReferralResponse, 0, len(rows))
	for _, row := range rows {
		out = append(out, toReferralResponse(row))
	}
	writeSuccess(w, http.StatusOK, out)
}

func (h *Handler) listCommissions(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.ListCommissions(r.Context(), actorFromContext(r.Context()))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := make([]contracts.CommissionResponse, 0, len(rows))
	for _, row := range rows {
		out = append(out, toCommissionResponse(row))
	}
	writeSuccess(w, http.StatusOK, out)
}

func (h *Handler) exportCommissions(w http.ResponseWriter, r *http.Request) {
	doc, err := h.service.ExportCommissionStatement(r.Context(), actorFromContext(r.Context()))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeFile(w, doc.FileName, doc.ContentType, doc.Body)
}

func (h *Handler) adminSetAffiliateStatus(w http.ResponseWriter, r *http.Request) {
	var req contracts.UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json body")
		return
	}
	aff, err := h.service.SetAffiliateStatus(r.Context(), actorFromContext(r.Context()), chi.URLParam(r, "affiliate_id"), domain.AffiliateStatus(req.Status))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, toAffiliateResponse(aff))
}

func (h *Handler) adminSetCommissionStatus(w http.ResponseWriter, r *http.Request) {
	var req contracts.UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json body")
		return
	}
	row, err := h.service.UpdateCommissionStatus(r.Context(), actorFromContext(r.Context()), chi.URLParam(r, "commission_id"), domain.CommissionStatus(req.Status))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, toCommissionResponse(row))
}

func toAffiliateResponse(a domain.AffiliateProfile) contracts.AffiliateResponse {
	return contracts.AffiliateResponse{
		AffiliateID:  a.AffiliateID,
		ReferralCode: a.ReferralCode,
		FirmName:     a.FirmName,
		ContactName:  a.ContactName,
		ContactEmail: a.ContactEmail,
		Phone:        a.Phone,
		Status:       string(a.Status),
	}
}

func toReferralResponse(r domain.Referral) contracts.ReferralResponse {
	out := contracts.ReferralResponse{
		ID:            r.ReferralID,
		AffiliateID:   r.AffiliateID,
		ReferredEmail: r.ReferredEmail,
		ReferredName:  r.ReferredName,
		FirmName:      r.FirmName,
		Status:        string(r.Status),
		CreatedAt:     formatTimestamp(r.CreatedAt),
	}
	if r.ConvertedAt != nil {
		at := formatTimestamp(*r.ConvertedAt)
		out.ConvertedAt = &at
	}
	return out
}

func toCommissionResponse(c domain.CommissionEntry) contracts.CommissionResponse {
	return contracts.CommissionResponse{
		ID:          c.CommissionID,
		AffiliateID: c.AffiliateID,
		ReferralID:  c.ReferralID,
		OrderID:     c.OrderID,
		PaymentID:   c.PaymentID,
		Amount:      c.AmountMinor,
		Currency:    c.Currency,
		Status:      string(c.Status),
		CreatedAt:   formatTimestamp(c.CreatedAt),
	}
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
