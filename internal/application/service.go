package application

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/financial-rails/M92-payment-attribution-service/internal/contracts"
	"github.com/viralforge/mesh/services/financial-rails/M92-payment-attribution-service/internal/domain"
	"github.com/viralforge/mesh/services/financial-rails/M92-payment-attribution-service/internal/ports"
)

const roleAdmin = "admin"

func NewService(deps Dependencies) (*Service, error) {
	cfg := deps.Config
	if cfg.ServiceName == "" {
		cfg.ServiceName = "M92-Payment-Attribution-Service"
	}
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = "INR"
	}
	// Rates are used as configured; zero is a valid rate.
	if cfg.TaxRatePercent.IsNegative() || cfg.CommissionRatePercent.IsNegative() {
		return nil, errors.New("tax and commission rates must not be negative")
	}
	if cfg.InvoiceNumberPrefix == "" {
		cfg.InvoiceNumberPrefix = "INV"
	}
	if cfg.CodeReservationTTL <= 0 {
		cfg.CodeReservationTTL = time.Minute
	}
	if cfg.ReferralRateWindow <= 0 {
		cfg.ReferralRateWindow = time.Hour
	}
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = 24 * time.Hour
	}
	codes, err := domain.NewCodeGenerator(domain.CodeGeneratorOptions{
		Prefix:      cfg.ReferralCodePrefix,
		Alphabet:    cfg.ReferralCodeAlphabet,
		Length:      cfg.ReferralCodeLength,
		MaxAttempts: cfg.ReferralCodeMaxAttempts,
		Random:      deps.Random,
	})
	if err != nil {
		return nil, fmt.Errorf("referral code generator: %w", err)
	}
	if deps.UnitOfWork == nil {
		return nil, errors.New("unit of work is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = ports.NoopMetrics{}
	}
	nowFn := deps.Now
	if nowFn == nil {
		nowFn = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		cfg:         cfg,
		orders:      deps.Orders,
		invoices:    deps.Invoices,
		affiliates:  deps.Affiliates,
		referrals:   deps.Referrals,
		commissions: deps.Commissions,
		deliveries:  deps.Deliveries,
		idempotency: deps.Idempotency,
		uow:         deps.UnitOfWork,
		gateway:     deps.Gateway,
		verifier:    deps.Verifier,
		notifier:    deps.Notifier,
		cache:       deps.Cache,
		invoicePDF:  deps.InvoicePDF,
		statements:  deps.Statements,
		metrics:     metrics,
		codes:       codes,
		logger:      logger,
		nowFn:       nowFn,
	}, nil
}

// notify runs after commit. Failures are logged and dropped.
func (s *Service) notify(ctx context.Context, n ports.Notification) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, n); err != nil {
		s.logger.WarnContext(ctx, "notification failed",
			"module", "application.notify",
			"layer", "application",
			"operation", string(n.Kind),
			"outcome", "failure",
			"error", err,
		)
	}
}

func (s *Service) enqueueEvent(ctx context.Context, outbox ports.OutboxRepository, eventType, partitionKeyPath, partitionKey string, data any, now time.Time) error {
	if outbox == nil {
		return nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	eventID := uuid.New()
	envelope, err := json.Marshal(contracts.EventEnvelope{
		EventID:          eventID.String(),
		EventType:        eventType,
		OccurredAt:       now,
		PartitionKeyPath: partitionKeyPath,
		PartitionKey:     partitionKey,
		SourceService:    s.cfg.ServiceName,
		TraceID:          uuid.NewString(),
		SchemaVersion:    "v1",
		Data:             raw,
	})
	if err != nil {
		return fmt.Errorf("marshal %s envelope: %w", eventType, err)
	}
	return outbox.Enqueue(ctx, ports.OutboxEvent{
		EventID:       eventID,
		EventType:     eventType,
		PartitionKey:  partitionKey,
		Payload:       envelope,
		SchemaVersion: "v1",
		OccurredAt:    now,
	})
}

func isAdmin(actor Actor) bool { return strings.EqualFold(strings.TrimSpace(actor.Role), roleAdmin) }

func requireSubject(actor Actor) error {
	if strings.TrimSpace(actor.SubjectID) == "" {
		return domain.ErrUnauthorized
	}
	return nil
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339) }

func hashJSON(v any) string {
	raw, _ := json.Marshal(v)
	h := sha256.Sum256(raw)
	return hex.EncodeToString(h[:])
}

func (s *Service) getIdempotent(ctx context.Context, key, expectedHash string) ([]byte, bool, error) {
	if s.idempotency == nil || strings.TrimSpace(key) == "" {
		return nil, false, nil
	}
	rec, err := s.idempotency.Get(ctx, key, s.nowFn())
	if err != nil || rec == nil {
		return nil, false, err
	}
	if rec.RequestHash != expectedHash {
		return nil, false, domain.ErrIdempotencyConflict
	}
	if len(rec.ResponseBody) == 0 {
		// reserved by a request that has not completed
		return nil, false, domain.ErrIdempotencyConflict
	}
	return rec.ResponseBody, true, nil
}

func (s *Service) reserveIdempotency(ctx context.Context, key, requestHash string) error {
	if s.idempotency == nil || strings.TrimSpace(key) == "" {
		return nil
	}
	if err := s.idempotency.Reserve(ctx, key, requestHash, s.nowFn().Add(s.cfg.IdempotencyTTL)); err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			return domain.ErrIdempotencyConflict
		}
		return err
	}
	return nil
}

func (s *Service) releaseIdempotency(ctx context.Context, key string) {
	if s.idempotency == nil || strings.TrimSpace(key) == "" {
		return
	}
	if err := s.idempotency.Release(ctx, key); err != nil {
		s.logger.WarnContext(ctx, "release idempotency key failed",
			"module", "application.idempotency",
			"layer", "application",
			"operation", "release",
			"outcome", "failure",
			"error", err,
		)
	}
}

func (s *Service) completeIdempotencyJSON(ctx context.Context, key string, code int, v any) error {
	if s.idempotency == nil || strings.TrimSpace(key) == "" {
		return nil
	}
	raw, _ := json.Marshal(v)
	return s.idempotency.Complete(ctx, key, code, raw, s.nowFn())
}
