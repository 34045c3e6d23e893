package application

import (
	"context"
	"fmt"
	"strings"

	"github.com/viralforge/mesh/services/financial-rails/M92-payment-attribution-service/internal/domain"
)

func (s *Service) GetInvoice(ctx context.Context, actor Actor, orderID string) (domain.Invoice, error) {
	if err := requireSubject(actor); err != nil {
		return domain.Invoice{}, err
	}
	if !isAdmin(actor) {
		return domain.Invoice{}, domain.ErrForbidden
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Invoice{}, domain.ErrInvalidInput
	}
	return s.invoices.GetByOrderID(ctx, orderID)
}

func (s *Service) RenderInvoicePDF(ctx context.Context, actor Actor, orderID string) (Statement, error) {
	if s.invoicePDF == nil {
		return Statement{}, fmt.Errorf("%w: invoice renderer", domain.ErrDependencyUnavailable)
	}
	invoice, err := s.GetInvoice(ctx, actor, orderID)
	if err != nil {
		return Statement{}, err
	}
	body, err := s.invoicePDF.RenderInvoice(invoice)
	if err != nil {
		return Statement{}, fmt.Errorf("render invoice %s: %w", invoice.Number, err)
	}
	return Statement{
		FileName:    invoice.Number + ".pdf",
		ContentType: "application/pdf",
		Body:        body,
	}, nil
}
