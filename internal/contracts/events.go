package contracts

import (
	"encoding/json"
	"time"
)

const (
	EventPaymentCaptured   = "payment.captured"
	EventPaymentFailed     = "payment.failed"
	EventInvoiceIssued     = "invoice.issued"
	EventReferralConverted = "referral.converted"
	EventCommissionCreated = "commission.created"
)

type EventEnvelope struct {
	EventID          string          `json:"event_id"`
	EventType        string          `json:"event_type"`
	OccurredAt       time.Time       `json:"occurred_at"`
	PartitionKeyPath string          `json:"partition_key_path"`
	PartitionKey     string          `json:"partition_key"`
	SourceService    string          `json:"source_service"`
	TraceID          string          `json:"trace_id"`
	SchemaVersion    string          `json:"schema_version"`
	Data             json.RawMessage `json:"data"`
}

type PaymentCapturedPayload struct {
	OrderID    string `json:"order_id"`
	PaymentID  string `json:"payment_id"`
	Amount     int64  `json:"amount"`
	Currency   string `json:"currency"`
	CapturedAt string `json:"captured_at"`
}

type PaymentFailedPayload struct {
	OrderID   string `json:"order_id"`
	PaymentID string `json:"payment_id,omitempty"`
	Reason    string `json:"reason,omitempty"`
	FailedAt  string `json:"failed_at"`
}

type InvoiceIssuedPayload struct {
	InvoiceNumber string `json:"invoice_number"`
	OrderID       string `json:"order_id"`
	Subtotal      int64  `json:"subtotal"`
	Tax           int64  `json:"tax"`
	Total         int64  `json:"total"`
	Currency      string `json:"currency"`
	IssuedAt      string `json:"issued_at"`
}

type ReferralConvertedPayload struct {
	AffiliateID string `json:"affiliate_id"`
	ReferralID  string `json:"referral_id"`
	OrderID     string `json:"order_id"`
	PaymentID   string `json:"payment_id"`
	ConvertedAt string `json:"converted_at"`
}

type CommissionCreatedPayload struct {
	CommissionID string `json:"commission_id"`
	AffiliateID  string `json:"affiliate_id"`
	ReferralID   string `json:"referral_id"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
	Status       string `json:"status"`
	CreatedAt    string `json:"created_at"`
}
