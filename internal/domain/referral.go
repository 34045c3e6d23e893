package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type AffiliateStatus string

const (
	AffiliateStatusActive   AffiliateStatus = "active"
	AffiliateStatusInactive AffiliateStatus = "inactive"
)

type ReferralStatus string

const (
	ReferralStatusPending   ReferralStatus = "pending"
	ReferralStatusConverted ReferralStatus = "converted"
	ReferralStatusExpired   ReferralStatus = "expired"
)

type CommissionStatus string

const (
	CommissionStatusPending  CommissionStatus = "pending"
	CommissionStatusApproved CommissionStatus = "approved"
	CommissionStatusPaid     CommissionStatus = "paid"
)

type AffiliateProfile struct {
	AffiliateID  string          `json:"affiliate_id"`
	UserID       string          `json:"user_id"`
	ReferralCode string          `json:"referral_code"`
	FirmName     string          `json:"firm_name"`
	ContactName  string          `json:"contact_name"`
	ContactEmail string          `json:"contact_email"`
	Phone        string          `json:"phone,omitempty"`
	Status       AffiliateStatus `json:"status"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

type Referral struct {
	ReferralID           string         `json:"referral_id"`
	AffiliateID          string         `json:"affiliate_id"`
	ReferredEmail        string         `json:"referred_email"`
	ReferredName         string         `json:"referred_name"`
	FirmName             string         `json:"firm_name,omitempty"`
	Status               ReferralStatus `json:"status"`
	ConvertedByPaymentID string         `json:"converted_by_payment_id,omitempty"`
	CreatedAt            time.Time      `json:"created_at"`
	ConvertedAt          *time.Time     `json:"converted_at,omitempty"`
}

type CommissionEntry struct {
	CommissionID string           `json:"commission_id"`
	AffiliateID  string           `json:"affiliate_id"`
	ReferralID   string           `json:"referral_id"`
	OrderID      string           `json:"order_id"`
	PaymentID    string           `json:"payment_id"`
	AmountMinor  int64            `json:"amount"`
	Currency     string           `json:"currency"`
	Status       CommissionStatus `json:"status"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

func NormalizeEmail(v string) string { return strings.ToLower(strings.TrimSpace(v)) }

func NormalizeReferralCode(v string) string { return strings.ToUpper(strings.TrimSpace(v)) }

func CommissionAmount(orderAmountMinor int64, ratePercent decimal.Decimal) int64 {
	return decimal.NewFromInt(orderAmountMinor).Mul(ratePercent).Div(decimal.NewFromInt(100)).Round(0).IntPart()
}

// CanAdvanceCommission allows pending -> approved -> paid, one step at a time.
func CanAdvanceCommission(from, to CommissionStatus) bool {
	switch from {
	case CommissionStatusPending:
		return to == CommissionStatusApproved
	case CommissionStatusApproved:
		return to == CommissionStatusPaid
	default:
		return false
	}
}

// FirmNameMatches is a loose, case-insensitive containment check between an
// order's company and a referral's firm name. It is a best-effort heuristic.
func FirmNameMatches(company, firm string) bool {
	c := strings.ToLower(strings.TrimSpace(company))
	f := strings.ToLower(strings.TrimSpace(firm))
	if c == "" || f == "" {
		return false
	}
	return strings.Contains(c, f) || strings.Contains(f, c)
}
