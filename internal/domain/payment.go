package domain

import (
	"encoding/json"
	"strings"
	"time"
)

type PaymentStatus string

const (
	PaymentStatusCreated  PaymentStatus = "created"
	PaymentStatusCaptured PaymentStatus = "captured"
	PaymentStatusFailed   PaymentStatus = "failed"
)

func (s PaymentStatus) Terminal() bool {
	return s == PaymentStatusCaptured || s == PaymentStatusFailed
}

type EventType string

const (
	EventPaymentCaptured EventType = "payment.captured"
	EventPaymentFailed   EventType = "payment.failed"
	EventOrderPaid       EventType = "order.paid"
)

type TransitionOutcome string

const (
	OutcomeApplied             TransitionOutcome = "applied"
	OutcomeDuplicate           TransitionOutcome = "duplicate"
	OutcomeIgnoredTerminal     TransitionOutcome = "ignored_terminal"
	OutcomeIgnoredUnknownEvent TransitionOutcome = "ignored_unknown_event"
	OutcomeSkippedUnknownOrder TransitionOutcome = "skipped_unknown_order"
)

type Customer struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Company string `json:"company,omitempty"`
	TaxID   string `json:"tax_id,omitempty"`
}

// ReferralTag is either no referral or a referral code. The zero value is NoReferral.
type ReferralTag struct {
	code string
	set  bool
}

func NoReferral() ReferralTag { return ReferralTag{} }

// ReferralCodeTag keeps the code as supplied; blank input yields NoReferral.
func ReferralCodeTag(code string) ReferralTag {
	if strings.TrimSpace(code) == "" {
		return ReferralTag{}
	}
	return ReferralTag{code: code, set: true}
}

func (t ReferralTag) Code() (string, bool) { return t.code, t.set }

func (t ReferralTag) MarshalJSON() ([]byte, error) {
	if !t.set {
		return []byte("null"), nil
	}
	return json.Marshal(t.code)
}

func (t *ReferralTag) UnmarshalJSON(raw []byte) error {
	var code *string
	if err := json.Unmarshal(raw, &code); err != nil {
		return err
	}
	if code == nil {
		*t = NoReferral()
		return nil
	}
	*t = ReferralCodeTag(*code)
	return nil
}

type PaymentOrder struct {
	OrderID          string            `json:"order_id"`
	AmountMinor      int64             `json:"amount"`
	Currency         string            `json:"currency"`
	Status           PaymentStatus     `json:"status"`
	Customer         Customer          `json:"customer"`
	Referral         ReferralTag       `json:"referral_code"`
	Notes            map[string]string `json:"notes,omitempty"`
	GatewayPaymentID string            `json:"gateway_payment_id,omitempty"`
	FailureReason    string            `json:"failure_reason,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
	CapturedAt       *time.Time        `json:"captured_at,omitempty"`
	FailedAt         *time.Time        `json:"failed_at,omitempty"`
}

// PaymentEvent is a verified gateway delivery reduced to what the state machine needs.
type PaymentEvent struct {
	DeliveryID    string
	Type          EventType
	OrderID       string
	PaymentID     string
	AmountMinor   int64
	Currency      string
	FailureReason string
	Raw           []byte
}

// StatusChange is applied together with a status transition.
type StatusChange struct {
	PaymentID     string
	FailureReason string
	At            time.Time
}

// TargetStatus maps a gateway event to the status it drives an order towards.
func TargetStatus(t EventType) (PaymentStatus, bool) {
	switch t {
	case EventPaymentCaptured, EventOrderPaid:
		return PaymentStatusCaptured, true
	case EventPaymentFailed:
		return PaymentStatusFailed, true
	default:
		return "", false
	}
}

func CanTransition(from, to PaymentStatus) bool {
	return from == PaymentStatusCreated && to.Terminal()
}

// Resolve classifies a conditional transition that matched no row, given the
// status read back afterwards. A still-created order means the read raced the
// write and the caller should retry.
func Resolve(observed, target PaymentStatus) (TransitionOutcome, error) {
	switch {
	case observed == target:
		return OutcomeDuplicate, nil
	case observed.Terminal():
		return OutcomeIgnoredTerminal, nil
	default:
		return "", ErrInvalidTransition
	}
}

// Apply returns the order after the transition. It is used by stores that
// evaluate the transition in memory.
func (o PaymentOrder) Apply(to PaymentStatus, change StatusChange) (PaymentOrder, error) {
	if !CanTransition(o.Status, to) {
		return o, ErrInvalidTransition
	}
	at := change.At
	o.Status = to
	o.UpdatedAt = at
	if change.PaymentID != "" {
		o.GatewayPaymentID = change.PaymentID
	}
	switch to {
	case PaymentStatusCaptured:
		o.CapturedAt = &at
	case PaymentStatusFailed:
		o.FailedAt = &at
		o.FailureReason = change.FailureReason
	}
	return o, nil
}
