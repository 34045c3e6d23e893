package application

import (
	"io"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"github.com/viralforge/mesh/services/financial-rails/M92-payment-attribution-service/internal/domain"
	"github.com/viralforge/mesh/services/financial-rails/M92-payment-attribution-service/internal/ports"
)

type Config struct {
	ServiceName            string
	DefaultCurrency        string
	TaxRatePercent         decimal.Decimal
	CommissionRatePercent  decimal.Decimal
	InvoiceNumberPrefix    string
	InvoiceLineDescription string

	ReferralCodePrefix      string
	ReferralCodeAlphabet    string
	ReferralCodeLength      int
	ReferralCodeMaxAttempts int
	CodeReservationTTL      time.Duration

	ReferralRateLimit  int
	ReferralRateWindow time.Duration

	IdempotencyTTL time.Duration
}

type Actor struct {
	SubjectID      string
	Role           string
	RequestID      string
	IdempotencyKey string
}

type CreateOrderInput struct {
	AmountMinor    int64
	Currency       string
	Customer       domain.Customer
	ReferralCode   string
	IdempotencyKey string
}

type OrderSummary struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Key      string `json:"key"`
}

type WebhookInput struct {
	RawBody   []byte
	Signature string
	EventID   string
}

type WebhookResult struct {
	EventType     string
	OrderID       string
	Outcome       domain.TransitionOutcome
	InvoiceNumber string
	CommissionID  string
}

type SubmitReferralInput struct {
	AffiliateID   string
	ReferredEmail string
	ReferredName  string
	FirmName      string
}

type RegisterAffiliateInput struct {
	FirmName     string
	ContactName  string
	ContactEmail string
	Phone        string
}

type Statement struct {
	FileName    string
	ContentType string
	Body        []byte
}

type Service struct {
	cfg Config

	orders      ports.OrderRepository
	invoices    ports.InvoiceRepository
	affiliates  ports.AffiliateRepository
	referrals   ports.ReferralRepository
	commissions ports.CommissionRepository
	deliveries  ports.WebhookDeliveryRepository
	idempotency ports.IdempotencyRepository
	uow         ports.UnitOfWork

	gateway    ports.PaymentGateway
	verifier   ports.SignatureVerifier
	notifier   ports.Notifier
	cache      ports.Cache
	invoicePDF ports.InvoiceRenderer
	statements ports.StatementRenderer
	metrics    ports.Metrics

	codes  *domain.CodeGenerator
	logger *slog.Logger
	nowFn  func() time.Time
}

type Dependencies struct {
	Config Config

	Orders      ports.OrderRepository
	Invoices    ports.InvoiceRepository
	Affiliates  ports.AffiliateRepository
	Referrals   ports.ReferralRepository
	Commissions ports.CommissionRepository
	Deliveries  ports.WebhookDeliveryRepository
	Idempotency ports.IdempotencyRepository
	UnitOfWork  ports.UnitOfWork

	Gateway    ports.PaymentGateway
	Verifier   ports.SignatureVerifier
	Notifier   ports.Notifier
	Cache      ports.Cache
	InvoicePDF ports.InvoiceRenderer
	Statements ports.StatementRenderer
	Metrics    ports.Metrics

	Logger *slog.Logger
	Random io.Reader
	Now    func() time.Time
}
