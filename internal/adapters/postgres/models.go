package postgres

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type paymentOrderModel struct {
	OrderID          string         `gorm:"column:order_id;primaryKey"`
	AmountMinor      int64          `gorm:"column:amount_minor"`
	Currency         string         `gorm:"column:currency"`
	Status           string         `gorm:"column:status"`
	CustomerName     string         `gorm:"column:customer_name"`
	CustomerEmail    string         `gorm:"column:customer_email"`
	CustomerPhone    string         `gorm:"column:customer_phone"`
	CustomerCompany  string         `gorm:"column:customer_company"`
	CustomerTaxID    string         `gorm:"column:customer_tax_id"`
	ReferralCode     *string        `gorm:"column:referral_code"`
	Notes            datatypes.JSON `gorm:"column:notes;type:jsonb"`
	GatewayPaymentID *string        `gorm:"column:gateway_payment_id"`
	FailureReason    string         `gorm:"column:failure_reason"`
	CreatedAt        time.Time      `gorm:"column:created_at"`
	UpdatedAt        time.Time      `gorm:"column:updated_at"`
	CapturedAt       *time.Time     `gorm:"column:captured_at"`
	FailedAt         *time.Time     `gorm:"column:failed_at"`
}

func (paymentOrderModel) TableName() string { return "payment_orders" }

type invoiceModel struct {
	InvoiceNumber  string         `gorm:"column:invoice_number;primaryKey"`
	OrderID        string         `gorm:"column:order_id"`
	PaymentID      string         `gorm:"column:payment_id"`
	Currency       string         `gorm:"column:currency"`
	Customer       datatypes.JSON `gorm:"column:customer;type:jsonb"`
	Lines          datatypes.JSON `gorm:"column:lines;type:jsonb"`
	SubtotalMinor  int64          `gorm:"column:subtotal_minor"`
	TaxRatePercent string         `gorm:"column:tax_rate_percent"`
	TaxMinor       int64          `gorm:"column:tax_minor"`
	TotalMinor     int64          `gorm:"column:total_minor"`
	Status         string         `gorm:"column:status"`
	IssuedAt       time.Time      `gorm:"column:issued_at"`
	PaidAt         *time.Time     `gorm:"column:paid_at"`
}

func (invoiceModel) TableName() string { return "invoices" }

type affiliateModel struct {
	AffiliateID  string    `gorm:"column:affiliate_id;primaryKey"`
	UserID       string    `gorm:"column:user_id"`
	ReferralCode string    `gorm:"column:referral_code"`
	FirmName     string    `gorm:"column:firm_name"`
	ContactName  string    `gorm:"column:contact_name"`
	ContactEmail string    `gorm:"column:contact_email"`
	Phone        string    `gorm:"column:phone"`
	Status       string    `gorm:"column:status"`
	CreatedAt    time.Time `gorm:"column:created_at"`
	UpdatedAt    time.Time `gorm:"column:updated_at"`
}

func (affiliateModel) TableName() string { return "affiliate_profiles" }

type referralModel struct {
	ReferralID           string     `gorm:"column:referral_id;primaryKey"`
	AffiliateID          string     `gorm:"column:affiliate_id"`
	ReferredEmail        string     `gorm:"column:referred_email"`
	ReferredName         string     `gorm:"column:referred_name"`
	FirmName             string     `gorm:"column:firm_name"`
	Status               string     `gorm:"column:status"`
	ConvertedByPaymentID *string    `gorm:"column:converted_by_payment_id"`
	CreatedAt            time.Time  `gorm:"column:created_at"`
	ConvertedAt          *time.Time `gorm:"column:converted_at"`
}

func (referralModel) TableName() string { return "referrals" }

type commissionModel struct {
	CommissionID string    `gorm:"column:commission_id;primaryKey"`
	AffiliateID  string    `gorm:"column:affiliate_id"`
	ReferralID   string    `gorm:"column:referral_id"`
	OrderID      string    `gorm:"column:order_id"`
	PaymentID    string    `gorm:"column:payment_id"`
	AmountMinor  int64     `gorm:"column:amount_minor"`
	Currency     string    `gorm:"column:currency"`
	Status       string    `gorm:"column:status"`
	CreatedAt    time.Time `gorm:"column:created_at"`
	UpdatedAt    time.Time `gorm:"column:updated_at"`
}

func (commissionModel) TableName() string { return "commission_entries" }

type outboxModel struct {
	OutboxID      uuid.UUID      `gorm:"column:outbox_id;type:uuid;primaryKey"`
	EventType     string         `gorm:"column:event_type"`
	PartitionKey  string         `gorm:"column:partition_key"`
	Payload       datatypes.JSON `gorm:"column:payload;type:jsonb"`
	SchemaVersion string         `gorm:"column:schema_version"`
	RetryCount    int            `gorm:"column:retry_count"`
	LastError     string         `gorm:"column:last_error"`
	LastErrorAt   *time.Time     `gorm:"column:last_error_at"`
	PublishedAt   *time.Time     `gorm:"column:published_at"`
	CreatedAt     time.Time      `gorm:"column:created_at"`
}

func (outboxModel) TableName() string { return "payment_outbox" }

type webhookDeliveryModel struct {
	DeliveryID string         `gorm:"column:delivery_id;primaryKey"`
	EventID    string         `gorm:"column:event_id"`
	EventType  string         `gorm:"column:event_type"`
	OrderID    string         `gorm:"column:order_id"`
	PaymentID  string         `gorm:"column:payment_id"`
	Outcome    string         `gorm:"column:outcome"`
	Error      string         `gorm:"column:error"`
	Payload    datatypes.JSON `gorm:"column:payload;type:jsonb"`
	ReceivedAt time.Time      `gorm:"column:received_at"`
}

func (webhookDeliveryModel) TableName() string { return "webhook_deliveries" }

type idempotencyModel struct {
	IdempotencyKey string    `gorm:"column:idempotency_key;primaryKey"`
	RequestHash    string    `gorm:"column:request_hash"`
	Status         string    `gorm:"column:status"`
	ResponseCode   int       `gorm:"column:response_code"`
	ResponseBody   *string   `gorm:"column:response_body"`
	ExpiresAt      time.Time `gorm:"column:expires_at"`
	CreatedAt      time.Time `gorm:"column:created_at"`
	UpdatedAt      time.Time `gorm:"column:updated_at"`
}

func (idempotencyModel) TableName() string { return "idempotency_keys" }
