package render

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
	"github.com/viralforge/mesh/services/financial-rails/M92-payment-attribution-service/internal/domain"
	"github.com/viralforge/mesh/services/financial-rails/M92-payment-attribution-service/internal/ports"
)

// Seller is printed in the invoice header.
type Seller struct {
	Name    string
	Address string
	TaxID   string
}

type InvoicePDF struct {
	seller Seller
}

func NewInvoicePDF(seller Seller) *InvoicePDF {
	return &InvoicePDF{seller: seller}
}

func (r *InvoicePDF) RenderInvoice(inv domain.Invoice) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(inv.Number, false)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(0, 8, r.seller.Name)
	pdf.Ln(6)
	pdf.SetFont("Arial", "", 9)
	if r.seller.Address != "" {
		pdf.Cell(0, 5, r.seller.Address)
		pdf.Ln(4)
	}
	if r.seller.TaxID != "" {
		pdf.Cell(0, 5, "Tax ID: "+r.seller.TaxID)
		pdf.Ln(4)
	}
	pdf.Ln(10)

	pdf.SetFont("Arial", "B", 24)
	pdf.Cell(0, 10, "INVOICE")
	pdf.Ln(15)

	pdf.SetFont("Arial", "", 10)
	pdf.Cell(90, 6, "Invoice Number: "+inv.Number)
	pdf.Cell(90, 6, "Date: "+inv.IssuedAt.UTC().Format("January 2, 2006"))
	pdf.Ln(6)
	pdf.Cell(90, 6, "Order: "+inv.OrderID)
	pdf.Cell(90, 6, "Payment: "+inv.PaymentID)
	pdf.Ln(6)
	status := "Status: DRAFT"
	if inv.Status == domain.InvoiceStatusPaid && inv.PaidAt != nil {
		status = "Status: PAID " + inv.PaidAt.UTC().Format("January 2, 2006")
	}
	pdf.Cell(90, 6, status)
	pdf.Ln(12)

	pdf.SetFont("Arial", "B", 12)
	pdf.Cell(0, 8, "Bill To:")
	pdf.Ln(6)
	pdf.SetFont("Arial", "", 10)
	for _, line := range []string{inv.Customer.Name, inv.Customer.Company, inv.Customer.Email, inv.Customer.Phone} {
		if line == "" {
			continue
		}
		pdf.Cell(0, 5, line)
		pdf.Ln(5)
	}
	if inv.Customer.TaxID != "" {
		pdf.Cell(0, 5, "Tax ID: "+inv.Customer.TaxID)
		pdf.Ln(5)
	}
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 11)
	pdf.Cell(95, 8, "Description")
	pdf.Cell(20, 8, "Qty")
	pdf.Cell(35, 8, "Unit Price")
	pdf.Cell(40, 8, "Amount")
	pdf.Ln(10)
	pdf.SetDrawColor(200, 200, 200)
	pdf.Line(10, pdf.GetY(), 200, pdf.GetY())
	pdf.Ln(4)

	pdf.SetFont("Arial", "", 10)
	for _, item := range inv.Lines {
		pdf.Cell(95, 6, item.Description)
		pdf.Cell(20, 6, fmt.Sprintf("%d", item.Quantity))
		pdf.Cell(35, 6, formatMinor(inv.Currency, item.UnitAmountMinor))
		pdf.Cell(40, 6, formatMinor(inv.Currency, item.AmountMinor))
		pdf.Ln(8)
	}

	pdf.Ln(10)
	totals := []struct {
		label string
		value int64
		bold  bool
	}{
		{"Subtotal:", inv.SubtotalMinor, false},
		{fmt.Sprintf("Tax (%s%%):", inv.TaxRatePercent), inv.TaxMinor, false},
		{"Total:", inv.TotalMinor, true},
	}
	for _, row := range totals {
		style := ""
		if row.bold {
			style = "B"
		}
		pdf.SetFont("Arial", style, 11)
		pdf.SetX(115)
		pdf.Cell(40, 9, row.label)
		pdf.Cell(45, 9, formatMinor(inv.Currency, row.value))
		pdf.Ln(9)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render invoice pdf: %w", err)
	}
	return buf.Bytes(), nil
}

var _ ports.InvoiceRenderer = (*InvoicePDF)(nil)
