package ports

import (
	"context"
	"time"

	"github.com/viralforge/mesh/services/financial-rails/M92-payment-attribution-service/internal/domain"
)

type OrderRepository interface {
	Create(ctx context.Context, order domain.PaymentOrder) error
	GetByID(ctx context.Context, orderID string) (domain.PaymentOrder, error)
	GetByPaymentID(ctx context.Context, paymentID string) (domain.PaymentOrder, error)
	// TransitionStatus moves the order from -> to in a single conditional
	// write. It reports false when the order was not in status from.
	TransitionStatus(ctx context.Context, orderID string, from, to domain.PaymentStatus, change domain.StatusChange) (bool, error)
}

type InvoiceRepository interface {
	domain.SequenceProvider
	Create(ctx context.Context, invoice domain.Invoice) error
	GetByOrderID(ctx context.Context, orderID string) (domain.Invoice, error)
}

type AffiliateRepository interface {
	Create(ctx context.Context, row domain.AffiliateProfile) error
	GetByID(ctx context.Context, affiliateID string) (domain.AffiliateProfile, error)
	GetByUserID(ctx context.Context, userID string) (domain.AffiliateProfile, error)
	GetByCode(ctx context.Context, code string) (domain.AffiliateProfile, error)
	CodeExists(ctx context.Context, code string) (bool, error)
	UpdateCode(ctx context.Context, affiliateID, code string, at time.Time) error
	UpdateStatus(ctx context.Context, affiliateID string, status domain.AffiliateStatus, at time.Time) error
}

type ReferralRepository interface {
	Create(ctx context.Context, row domain.Referral) error
	GetByID(ctx context.Context, referralID string) (domain.Referral, error)
	HasPending(ctx context.Context, affiliateID, email string) (bool, error)
	FindPendingByEmail(ctx context.Context, affiliateID, email string) (domain.Referral, error)
	ListPendingByAffiliate(ctx context.Context, affiliateID string) ([]domain.Referral, error)
	ListByAffiliate(ctx context.Context, affiliateID string) ([]domain.Referral, error)
	MarkConverted(ctx context.Context, referralID, paymentID string, at time.Time) (bool, error)
}

type CommissionRepository interface {
	Create(ctx context.Context, row domain.CommissionEntry) error
	GetByID(ctx context.Context, commissionID string) (domain.CommissionEntry, error)
	ListByAffiliate(ctx context.Context, affiliateID string) ([]domain.CommissionEntry, error)
	UpdateStatus(ctx context.Context, commissionID string, from, to domain.CommissionStatus, at time.Time) (bool, error)
}

type WebhookDelivery struct {
	DeliveryID string
	EventID    string
	EventType  string
	OrderID    string
	PaymentID  string
	Outcome    string
	Error      string
	Payload    []byte
	ReceivedAt time.Time
}

type WebhookDeliveryRepository interface {
	Append(ctx context.Context, row WebhookDelivery) error
}

type IdempotencyRecord struct {
	Key          string
	RequestHash  string
	ResponseCode int
	ResponseBody []byte
	ExpiresAt    time.Time
}

type IdempotencyRepository interface {
	Get(ctx context.Context, key string, now time.Time) (*IdempotencyRecord, error)
	Reserve(ctx context.Context, key, requestHash string, expiresAt time.Time) error
	Complete(ctx context.Context, key string, responseCode int, responseBody []byte, at time.Time) error
	// Release drops a reservation that never completed.
	Release(ctx context.Context, key string) error
}

// TxRepositories are bound to one transaction.
type TxRepositories struct {
	Orders      OrderRepository
	Invoices    InvoiceRepository
	Affiliates  AffiliateRepository
	Referrals   ReferralRepository
	Commissions CommissionRepository
	Outbox      OutboxRepository
}

type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx TxRepositories) error) error
}
