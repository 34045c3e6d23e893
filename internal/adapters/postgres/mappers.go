package postgres

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cast"
	"github.com/viralforge/mesh/services/financial-rails/M92-payment-attribution-service/internal/domain"
	"gorm.io/datatypes"
)

func toOrderModel(o domain.PaymentOrder) (paymentOrderModel, error) {
	notes := o.Notes
	if notes == nil {
		notes = map[string]string{}
	}
	rawNotes, err := json.Marshal(notes)
	if err != nil {
		return paymentOrderModel{}, fmt.Errorf("marshal order notes: %w", err)
	}
	m := paymentOrderModel{
		OrderID:          o.OrderID,
		AmountMinor:      o.AmountMinor,
		Currency:         o.Currency,
		Status:           string(o.Status),
		CustomerName:     o.Customer.Name,
		CustomerEmail:    o.Customer.Email,
		CustomerPhone:    o.Customer.Phone,
		CustomerCompany:  o.Customer.Company,
		CustomerTaxID:    o.Customer.TaxID,
		Notes:            datatypes.JSON(rawNotes),
		GatewayPaymentID: nullable(o.GatewayPaymentID),
		FailureReason:    o.FailureReason,
		CreatedAt:        o.CreatedAt,
		UpdatedAt:        o.UpdatedAt,
		CapturedAt:       o.CapturedAt,
		FailedAt:         o.FailedAt,
	}
	if code, ok := o.Referral.Code(); ok {
		m.ReferralCode = &code
	}
	return m, nil
}

func toDomainOrder(m paymentOrderModel) domain.PaymentOrder {
	o := domain.PaymentOrder{
		OrderID:     m.OrderID,
		AmountMinor: m.AmountMinor,
		Currency:    m.Currency,
		Status:      domain.PaymentStatus(m.Status),
		Customer: domain.Customer{
			Name:    m.CustomerName,
			Email:   m.CustomerEmail,
			Phone:   m.CustomerPhone,
			Company: m.CustomerCompany,
			TaxID:   m.CustomerTaxID,
		},
		Referral:      domain.NoReferral(),
		Notes:         decodeNotes(m.Notes),
		FailureReason: m.FailureReason,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
		CapturedAt:    m.CapturedAt,
		FailedAt:      m.FailedAt,
	}
	if m.ReferralCode != nil {
		o.Referral = domain.ReferralCodeTag(*m.ReferralCode)
	}
	if m.GatewayPaymentID != nil {
		o.GatewayPaymentID = *m.GatewayPaymentID
	}
	return o
}

// decodeNotes tolerates rows written by older releases whose note values
// were not all strings.
func decodeNotes(raw datatypes.JSON) map[string]string {
	if len(raw) == 0 {
		return nil
	}
	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil
	}
	return cast.ToStringMapString(generic)
}

func toInvoiceModel(inv domain.Invoice) (invoiceModel, error) {
	customer, err := json.Marshal(inv.Customer)
	if err != nil {
		return invoiceModel{}, fmt.Errorf("marshal invoice customer: %w", err)
	}
	lines, err := json.Marshal(inv.Lines)
	if err != nil {
		return invoiceModel{}, fmt.Errorf("marshal invoice lines: %w", err)
	}
	return invoiceModel{
		InvoiceNumber:  inv.Number,
		OrderID:        inv.OrderID,
		PaymentID:      inv.PaymentID,
		Currency:       inv.Currency,
		Customer:       datatypes.JSON(customer),
		Lines:          datatypes.JSON(lines),
		SubtotalMinor:  inv.SubtotalMinor,
		TaxRatePercent: inv.TaxRatePercent,
		TaxMinor:       inv.TaxMinor,
		TotalMinor:     inv.TotalMinor,
		Status:         string(inv.Status),
		IssuedAt:       inv.IssuedAt,
		PaidAt:         inv.PaidAt,
	}, nil
}

func toDomainInvoice(m invoiceModel) (domain.Invoice, error) {
	inv := domain.Invoice{
		Number:         m.InvoiceNumber,
		OrderID:        m.OrderID,
		PaymentID:      m.PaymentID,
		Currency:       m.Currency,
		SubtotalMinor:  m.SubtotalMinor,
		TaxRatePercent: m.TaxRatePercent,
		TaxMinor:       m.TaxMinor,
		TotalMinor:     m.TotalMinor,
		Status:         domain.InvoiceStatus(m.Status),
		IssuedAt:       m.IssuedAt,
		PaidAt:         m.PaidAt,
	}
	if err := json.Unmarshal(m.Customer, &inv.Customer); err != nil {
		return domain.Invoice{}, fmt.Errorf("decode invoice customer: %w", err)
	}
	if err := json.Unmarshal(m.Lines, &inv.Lines); err != nil {
		return domain.Invoice{}, fmt.Errorf("decode invoice lines: %w", err)
	}
	return inv, nil
}

func toAffiliateModel(a domain.AffiliateProfile) affiliateModel {
	return affiliateModel{
		AffiliateID:  a.AffiliateID,
		UserID:       a.UserID,
		ReferralCode: domain.NormalizeReferralCode(a.ReferralCode),
		FirmName:     a.FirmName,
		ContactName:  a.ContactName,
		ContactEmail: a.ContactEmail,
		Phone:        a.Phone,
		Status:       string(a.Status),
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
}

func toDomainAffiliate(m affiliateModel) domain.AffiliateProfile {
	return domain.AffiliateProfile{
		AffiliateID:  m.AffiliateID,
		UserID:       m.UserID,
		ReferralCode: m.ReferralCode,
		FirmName:     m.FirmName,
		ContactName:  m.ContactName,
		ContactEmail: m.ContactEmail,
		Phone:        m.Phone,
		Status:       domain.AffiliateStatus(m.Status),
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func toReferralModel(r domain.Referral) referralModel {
	return referralModel{
		ReferralID:           r.ReferralID,
		AffiliateID:          r.AffiliateID,
		ReferredEmail:        domain.NormalizeEmail(r.ReferredEmail),
		ReferredName:         r.ReferredName,
		FirmName:             r.FirmName,
		Status:               string(r.Status),
		ConvertedByPaymentID: nullable(r.ConvertedByPaymentID),
		CreatedAt:            r.CreatedAt,
		ConvertedAt:          r.ConvertedAt,
	}
}

func toDomainReferral(m referralModel) domain.Referral {
	r := domain.Referral{
		ReferralID:    m.ReferralID,
		AffiliateID:   m.AffiliateID,
		ReferredEmail: m.ReferredEmail,
		ReferredName:  m.ReferredName,
		FirmName:      m.FirmName,
		Status:        domain.ReferralStatus(m.Status),
		CreatedAt:     m.CreatedAt,
		ConvertedAt:   m.ConvertedAt,
	}
	if m.ConvertedByPaymentID != nil {
		r.ConvertedByPaymentID = *m.ConvertedByPaymentID
	}
	return r
}

func toCommissionModel(c domain.CommissionEntry) commissionModel {
	return commissionModel{
		CommissionID: c.CommissionID,
		AffiliateID:  c.AffiliateID,
		ReferralID:   c.ReferralID,
		OrderID:      c.OrderID,
		PaymentID:    c.PaymentID,
		AmountMinor:  c.AmountMinor,
		Currency:     c.Currency,
		Status:       string(c.Status),
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}

func toDomainCommission(m commissionModel) domain.CommissionEntry {
	return domain.CommissionEntry{
		CommissionID: m.CommissionID,
		AffiliateID:  m.AffiliateID,
		ReferralID:   m.ReferralID,
		OrderID:      m.OrderID,
		PaymentID:    m.PaymentID,
		AmountMinor:  m.AmountMinor,
		Currency:     m.Currency,
		Status:       domain.CommissionStatus(m.Status),
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func nullable(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

// jsonPayload returns raw when it is valid JSON and a JSON string otherwise,
// so malformed webhook bodies can still be stored in a jsonb column.
func jsonPayload(raw []byte) datatypes.JSON {
	if len(raw) > 0 && json.Valid(raw) {
		return datatypes.JSON(raw)
	}
	quoted, _ := json.Marshal(string(raw))
	return datatypes.JSON(quoted)
}
