package domain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type InvoiceStatus string

const (
	InvoiceStatusDraft InvoiceStatus = "draft"
	InvoiceStatusPaid  InvoiceStatus = "paid"
)

type InvoiceLine struct {
	Description     string `json:"description"`
	Quantity        int64  `json:"quantity"`
	UnitAmountMinor int64  `json:"unit_amount"`
	AmountMinor     int64  `json:"amount"`
}

type Invoice struct {
	Number         string        `json:"invoice_number"`
	OrderID        string        `json:"order_id"`
	PaymentID      string        `json:"payment_id"`
	Currency       string        `json:"currency"`
	Customer       Customer      `json:"customer"`
	Lines          []InvoiceLine `json:"lines"`
	SubtotalMinor  int64         `json:"subtotal"`
	TaxRatePercent string        `json:"tax_rate_percent"`
	TaxMinor       int64         `json:"tax"`
	TotalMinor     int64         `json:"total"`
	Status         InvoiceStatus `json:"status"`
	IssuedAt       time.Time     `json:"issued_at"`
	PaidAt         *time.Time    `json:"paid_at,omitempty"`
}

// SequenceProvider hands out strictly increasing invoice sequence numbers.
type SequenceProvider interface {
	NextSequence(ctx context.Context) (int64, error)
}

type InvoicePolicy struct {
	NumberPrefix    string
	TaxRatePercent  decimal.Decimal
	LineDescription string
}

func ComputeTax(subtotalMinor int64, ratePercent decimal.Decimal) int64 {
	return decimal.NewFromInt(subtotalMinor).Mul(ratePercent).Div(decimal.NewFromInt(100)).Round(0).IntPart()
}

func FormatInvoiceNumber(prefix string, issuedAt time.Time, seq int64) string {
	if strings.TrimSpace(prefix) == "" {
		prefix = "INV"
	}
	return fmt.Sprintf("%s-%s-%06d", prefix, issuedAt.UTC().Format("200601"), seq)
}

// GenerateInvoice derives a draft invoice for a captured order. It draws one
// number from seq and has no other side effects.
func GenerateInvoice(ctx context.Context, order PaymentOrder, seq SequenceProvider, policy InvoicePolicy, now time.Time) (Invoice, error) {
	if order.OrderID == "" || order.AmountMinor <= 0 {
		return Invoice{}, ErrInvalidInput
	}
	if policy.TaxRatePercent.IsNegative() {
		return Invoice{}, fmt.Errorf("%w: negative tax rate", ErrInvalidInput)
	}
	n, err := seq.NextSequence(ctx)
	if err != nil {
		return Invoice{}, fmt.Errorf("next invoice sequence: %w", err)
	}
	desc := policy.LineDescription
	if desc == "" {
		desc = "Subscription"
	}
	subtotal := order.AmountMinor
	tax := ComputeTax(subtotal, policy.TaxRatePercent)
	return Invoice{
		Number:    FormatInvoiceNumber(policy.NumberPrefix, now, n),
		OrderID:   order.OrderID,
		PaymentID: order.GatewayPaymentID,
		Currency:  order.Currency,
		Customer:  order.Customer,
		Lines: []InvoiceLine{
			{Description: desc, Quantity: 1, UnitAmountMinor: subtotal, AmountMinor: subtotal},
		},
		SubtotalMinor:  subtotal,
		TaxRatePercent: policy.TaxRatePercent.String(),
		TaxMinor:       tax,
		TotalMinor:     subtotal + tax,
		Status:         InvoiceStatusDraft,
		IssuedAt:       now,
	}, nil
}

func (i Invoice) MarkPaid(at time.Time) (Invoice, error) {
	if i.Status != InvoiceStatusDraft {
		return i, ErrInvalidTransition
	}
	i.Status = InvoiceStatusPaid
	i.PaidAt = &at
	return i, nil
}
