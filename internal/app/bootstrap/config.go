package bootstrap

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type Config struct {
	ServiceID string

	HTTPPort int
	GRPCPort int

	DatabaseURL  string
	RedisURL     string
	KafkaBrokers []string
	MaxDBConns   int32

	KafkaTopicPaymentCaptured   string
	KafkaTopicPaymentFailed     string
	KafkaTopicInvoiceIssued     string
	KafkaTopicReferralConverted string
	KafkaTopicCommissionCreated string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxRetries   int

	GatewayKeyID     string
	GatewayKeySecret string
	GatewayBaseURL   string
	GatewayTimeout   time.Duration
	WebhookSecret    string
	SignatureHeader  string
	MaxWebhookBytes  int64

	JWTSecret string
	JWTIssuer string

	DefaultCurrency       string
	TaxRatePercent        decimal.Decimal
	CommissionRatePercent decimal.Decimal
	InvoicePrefix         string
	InvoiceDescription    string

	ReferralCodePrefix      string
	ReferralCodeAlphabet    string
	ReferralCodeLength      int
	ReferralCodeMaxAttempts int
	CodeReservationTTL      time.Duration
	ReferralRateLimit       int
	ReferralRateWindow      time.Duration
	IdempotencyTTL          time.Duration

	SlackToken         string
	SlackChannel       string
	SlackAlertsChannel string

	SellerName    string
	SellerAddress string
	SellerTaxID   string

	MetricsEnabled bool
}

type configFile struct {
	Service struct {
		ID       string `yaml:"id"`
		HTTPPort int    `yaml:"http_port"`
		GRPCPort int    `yaml:"grpc_port"`
	} `yaml:"service"`
	Dependencies struct {
		PostgresURL                 string   `yaml:"postgres_url"`
		RedisURL                    string   `yaml:"redis_url"`
		KafkaBrokers                []string `yaml:"kafka_brokers"`
		KafkaTopicPaymentCaptured   string   `yaml:"kafka_topic_payment_captured"`
		KafkaTopicPaymentFailed     string   `yaml:"kafka_topic_payment_failed"`
		KafkaTopicInvoiceIssued     string   `yaml:"kafka_topic_invoice_issued"`
		KafkaTopicReferralConverted string   `yaml:"kafka_topic_referral_converted"`
		KafkaTopicCommissionCreated string   `yaml:"kafka_topic_commission_created"`
	} `yaml:"dependencies"`
	Gateway struct {
		BaseURL         string `yaml:"base_url"`
		TimeoutSeconds  int    `yaml:"timeout_seconds"`
		SignatureHeader string `yaml:"signature_header"`
	} `yaml:"gateway"`
	Attribution struct {
		Currency              string `yaml:"currency"`
		TaxRatePercent        string `yaml:"tax_rate_percent"`
		CommissionRatePercent string `yaml:"commission_rate_percent"`
		InvoicePrefix         string `yaml:"invoice_prefix"`
		CodePrefix            string `yaml:"code_prefix"`
		CodeAlphabet          string `yaml:"code_alphabet"`
		CodeLength            int    `yaml:"code_length"`
		CodeMaxAttempts       int    `yaml:"code_max_attempts"`
		ReferralRateLimit     int    `yaml:"referral_rate_limit"`
	} `yaml:"attribution"`
	Notifications struct {
		SlackChannel       string `yaml:"slack_channel"`
		SlackAlertsChannel string `yaml:"slack_alerts_channel"`
	} `yaml:"notifications"`
	Seller struct {
		Name    string `yaml:"name"`
		Address string `yaml:"address"`
		TaxID   string `yaml:"tax_id"`
	} `yaml:"seller"`
}

func LoadConfig(path string) (Config, error) {
	cfg := Config{
		ServiceID:                   "M92-Payment-Attribution-Service",
		HTTPPort:                    8080,
		GRPCPort:                    9090,
		MaxDBConns:                  20,
		KafkaTopicPaymentCaptured:   "payment.captured",
		KafkaTopicPaymentFailed:     "payment.failed",
		KafkaTopicInvoiceIssued:     "invoice.issued",
		KafkaTopicReferralConverted: "referral.converted",
		KafkaTopicCommissionCreated: "commission.created",
		OutboxPollInterval:          2 * time.Second,
		OutboxBatchSize:             100,
		OutboxMaxRetries:            10,
		GatewayBaseURL:              "https://api.razorpay.com",
		GatewayTimeout:              10 * time.Second,
		SignatureHeader:             "X-Razorpay-Signature",
		MaxWebhookBytes:             1 << 20,
		JWTIssuer:                   "viralforge-auth",
		DefaultCurrency:             "INR",
		TaxRatePercent:              decimal.NewFromInt(18),
		CommissionRatePercent:       decimal.NewFromInt(10),
		InvoicePrefix:               "INV",
		InvoiceDescription:          "Software subscription",
		ReferralCodePrefix:          "REF-",
		ReferralCodeAlphabet:        "ABCDEFGHJKLMNPQRSTUVWXYZ23456789",
		ReferralCodeLength:          6,
		ReferralCodeMaxAttempts:     10,
		CodeReservationTTL:          time.Minute,
		ReferralRateLimit:           50,
		ReferralRateWindow:          time.Hour,
		IdempotencyTTL:              24 * time.Hour,
		MetricsEnabled:              true,
	}

	raw, err := os.ReadFile(path)
	if err == nil {
		var f configFile
		if unmarshalErr := yaml.Unmarshal(raw, &f); unmarshalErr != nil {
			return Config{}, fmt.Errorf("parse config file: %w", unmarshalErr)
		}
		if err := applyFile(&cfg, f); err != nil {
			return Config{}, err
		}
	}

	cfg.DatabaseURL = envOrDefault("DB_URL", envOrDefault("POSTGRES_URL", cfg.DatabaseURL))
	cfg.RedisURL = envOrDefault("REDIS_URL", cfg.RedisURL)
	cfg.KafkaBrokers = envCSV("KAFKA_BROKERS", cfg.KafkaBrokers)
	cfg.KafkaTopicPaymentCaptured = envOrDefault("KAFKA_TOPIC_PAYMENT_CAPTURED", cfg.KafkaTopicPaymentCaptured)
	cfg.KafkaTopicPaymentFailed = envOrDefault("KAFKA_TOPIC_PAYMENT_FAILED", cfg.KafkaTopicPaymentFailed)
	cfg.KafkaTopicInvoiceIssued = envOrDefault("KAFKA_TOPIC_INVOICE_ISSUED", cfg.KafkaTopicInvoiceIssued)
	cfg.KafkaTopicReferralConverted = envOrDefault("KAFKA_TOPIC_REFERRAL_CONVERTED", cfg.KafkaTopicReferralConverted)
	cfg.KafkaTopicCommissionCreated = envOrDefault("KAFKA_TOPIC_COMMISSION_CREATED", cfg.KafkaTopicCommissionCreated)
	cfg.HTTPPort = envInt("HTTP_PORT", cfg.HTTPPort)
	cfg.GRPCPort = envInt("GRPC_PORT", cfg.GRPCPort)
	cfg.MaxDBConns = int32(envInt("DB_MAX_CONNS", int(cfg.MaxDBConns)))
	cfg.OutboxPollInterval = time.Duration(envInt("OUTBOX_POLL_SECONDS", int(cfg.OutboxPollInterval.Seconds()))) * time.Second
	cfg.OutboxBatchSize = envInt("OUTBOX_BATCH_SIZE", cfg.OutboxBatchSize)
	cfg.OutboxMaxRetries = envInt("OUTBOX_MAX_RETRIES", cfg.OutboxMaxRetries)

	cfg.GatewayKeyID = envOrDefault("RAZORPAY_KEY_ID", cfg.GatewayKeyID)
	cfg.GatewayKeySecret = envOrDefault("RAZORPAY_KEY_SECRET", cfg.GatewayKeySecret)
	cfg.GatewayBaseURL = envOrDefault("RAZORPAY_BASE_URL", cfg.GatewayBaseURL)
	cfg.GatewayTimeout = time.Duration(envInt("RAZORPAY_TIMEOUT_SECONDS", int(cfg.GatewayTimeout.Seconds()))) * time.Second
	cfg.WebhookSecret = envOrDefault("RAZORPAY_WEBHOOK_SECRET", cfg.WebhookSecret)
	cfg.SignatureHeader = envOrDefault("WEBHOOK_SIGNATURE_HEADER", cfg.SignatureHeader)
	cfg.MaxWebhookBytes = int64(envInt("WEBHOOK_MAX_BYTES", int(cfg.MaxWebhookBytes)))

	cfg.JWTSecret = envOrDefault("JWT_SECRET", cfg.JWTSecret)
	cfg.JWTIssuer = envOrDefault("JWT_ISSUER", cfg.JWTIssuer)

	cfg.DefaultCurrency = strings.ToUpper(envOrDefault("DEFAULT_CURRENCY", cfg.DefaultCurrency))
	if cfg.TaxRatePercent, err = envDecimal("TAX_RATE_PERCENT", cfg.TaxRatePercent); err != nil {
		return Config{}, err
	}
	if cfg.CommissionRatePercent, err = envDecimal("COMMISSION_RATE_PERCENT", cfg.CommissionRatePercent); err != nil {
		return Config{}, err
	}
	cfg.InvoicePrefix = envOrDefault("INVOICE_PREFIX", cfg.InvoicePrefix)
	cfg.InvoiceDescription = envOrDefault("INVOICE_DESCRIPTION", cfg.InvoiceDescription)
	cfg.ReferralCodePrefix = envOrDefault("REFERRAL_CODE_PREFIX", cfg.ReferralCodePrefix)
	cfg.ReferralCodeAlphabet = envOrDefault("REFERRAL_CODE_ALPHABET", cfg.ReferralCodeAlphabet)
	cfg.ReferralCodeLength = envInt("REFERRAL_CODE_LENGTH", cfg.ReferralCodeLength)
	cfg.ReferralCodeMaxAttempts = envInt("REFERRAL_CODE_MAX_ATTEMPTS", cfg.ReferralCodeMaxAttempts)
	cfg.ReferralRateLimit = envInt("REFERRAL_RATE_LIMIT_PER_HOUR", cfg.ReferralRateLimit)
	cfg.IdempotencyTTL = time.Duration(envInt("IDEMPOTENCY_TTL_HOURS", int(cfg.IdempotencyTTL.Hours()))) * time.Hour

	cfg.SlackToken = envOrDefault("SLACK_BOT_TOKEN", cfg.SlackToken)
	cfg.SlackChannel = envOrDefault("SLACK_CHANNEL", cfg.SlackChannel)
	cfg.SlackAlertsChannel = envOrDefault("SLACK_ALERTS_CHANNEL", cfg.SlackAlertsChannel)

	cfg.SellerName = envOrDefault("SELLER_NAME", cfg.SellerName)
	cfg.SellerAddress = envOrDefault("SELLER_ADDRESS", cfg.SellerAddress)
	cfg.SellerTaxID = envOrDefault("SELLER_TAX_ID", cfg.SellerTaxID)
	cfg.MetricsEnabled = envBool("METRICS_ENABLED", cfg.MetricsEnabled)

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("missing DB_URL/POSTGRES_URL")
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("missing JWT_SECRET")
	}
	if cfg.TaxRatePercent.IsNegative() || cfg.CommissionRatePercent.IsNegative() {
		return Config{}, fmt.Errorf("tax and commission rates must not be negative")
	}
	return cfg, nil
}

func applyFile(cfg *Config, f configFile) error {
	if f.Service.ID != "" {
		cfg.ServiceID = f.Service.ID
	}
	if f.Service.HTTPPort > 0 {
		cfg.HTTPPort = f.Service.HTTPPort
	}
	if f.Service.GRPCPort > 0 {
		cfg.GRPCPort = f.Service.GRPCPort
	}
	if f.Dependencies.PostgresURL != "" {
		cfg.DatabaseURL = f.Dependencies.PostgresURL
	}
	if f.Dependencies.RedisURL != "" {
		cfg.RedisURL = f.Dependencies.RedisURL
	}
	if len(f.Dependencies.KafkaBrokers) > 0 {
		cfg.KafkaBrokers = trimNonEmpty(f.Dependencies.KafkaBrokers)
	}
	if f.Dependencies.KafkaTopicPaymentCaptured != "" {
		cfg.KafkaTopicPaymentCaptured = f.Dependencies.KafkaTopicPaymentCaptured
	}
	if f.Dependencies.KafkaTopicPaymentFailed != "" {
		cfg.KafkaTopicPaymentFailed = f.Dependencies.KafkaTopicPaymentFailed
	}
	if f.Dependencies.KafkaTopicInvoiceIssued != "" {
		cfg.KafkaTopicInvoiceIssued = f.Dependencies.KafkaTopicInvoiceIssued
	}
	if f.Dependencies.KafkaTopicReferralConverted != "" {
		cfg.KafkaTopicReferralConverted = f.Dependencies.KafkaTopicReferralConverted
	}
	if f.Dependencies.KafkaTopicCommissionCreated != "" {
		cfg.KafkaTopicCommissionCreated = f.Dependencies.KafkaTopicCommissionCreated
	}
	if f.Gateway.BaseURL != "" {
		cfg.GatewayBaseURL = f.Gateway.BaseURL
	}
	if f.Gateway.TimeoutSeconds > 0 {
		cfg.GatewayTimeout = time.Duration(f.Gateway.TimeoutSeconds) * time.Second
	}
	if f.Gateway.SignatureHeader != "" {
		cfg.SignatureHeader = f.Gateway.SignatureHeader
	}
	if f.Attribution.Currency != "" {
		cfg.DefaultCurrency = f.Attribution.Currency
	}
	if f.Attribution.TaxRatePercent != "" {
		rate, err := decimal.NewFromString(f.Attribution.TaxRatePercent)
		if err != nil {
			return fmt.Errorf("parse attribution.tax_rate_percent: %w", err)
		}
		cfg.TaxRatePercent = rate
	}
	if f.Attribution.CommissionRatePercent != "" {
		rate, err := decimal.NewFromString(f.Attribution.CommissionRatePercent)
		if err != nil {
			return fmt.Errorf("parse attribution.commission_rate_percent: %w", err)
		}
		cfg.CommissionRatePercent = rate
	}
	if f.Attribution.InvoicePrefix != "" {
		cfg.InvoicePrefix = f.Attribution.InvoicePrefix
	}
	if f.Attribution.CodePrefix != "" {
		cfg.ReferralCodePrefix = f.Attribution.CodePrefix
	}
	if f.Attribution.CodeAlphabet != "" {
		cfg.ReferralCodeAlphabet = f.Attribution.CodeAlphabet
	}
	if f.Attribution.CodeLength > 0 {
		cfg.ReferralCodeLength = f.Attribution.CodeLength
	}
	if f.Attribution.CodeMaxAttempts > 0 {
		cfg.ReferralCodeMaxAttempts = f.Attribution.CodeMaxAttempts
	}
	if f.Attribution.ReferralRateLimit > 0 {
		cfg.ReferralRateLimit = f.Attribution.ReferralRateLimit
	}
	if f.Notifications.SlackChannel != "" {
		cfg.SlackChannel = f.Notifications.SlackChannel
	}
	if f.Notifications.SlackAlertsChannel != "" {
		cfg.SlackAlertsChannel = f.Notifications.SlackAlertsChannel
	}
	if f.Seller.Name != "" {
		cfg.SellerName = f.Seller.Name
	}
	if f.Seller.Address != "" {
		cfg.SellerAddress = f.Seller.Address
	}
	if f.Seller.TaxID != "" {
		cfg.SellerTaxID = f.Seller.TaxID
	}
	return nil
}

func envOrDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func envBool(name string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	switch strings.ToLower(raw) {
	case "1", "true", "yes":
		return true
	case "0", "false", "no":
		return false
	default:
		return fallback
	}
}

// envDecimal returns an error for unparsable values instead of the fallback.
func envDecimal(name string, fallback decimal.Decimal) (decimal.Decimal, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback, nil
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse %s: %w", name, err)
	}
	return v, nil
}

func envCSV(name string, fallback []string) []string {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	items := strings.Split(raw, ",")
	return trimNonEmpty(items)
}

func trimNonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
