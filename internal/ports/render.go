package ports

import "github.com/viralforge/mesh/services/financial-rails/M92-payment-attribution-service/internal/domain"

type InvoiceRenderer interface {
	RenderInvoice(invoice domain.Invoice) ([]byte, error)
}

type StatementRenderer interface {
	RenderCommissionStatement(affiliate domain.AffiliateProfile, rows []domain.CommissionEntry) ([]byte, error)
}
