package events

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/viralforge/mesh/services/financial-rails/M92-payment-attribution-service/internal/ports"
)

type OutboxWorker struct {
	logger     *slog.Logger
	outbox     ports.OutboxRepository
	publisher  ports.EventPublisher
	metrics    ports.Metrics
	interval   time.Duration
	batchSize  int
	maxRetries int
	now        func() time.Time
}

type OutboxOptions struct {
	Interval  time.Duration
	BatchSize int
	// MaxRetries stops relaying a row after that many failed attempts. Zero
	// retries forever.
	MaxRetries int
	Metrics    ports.Metrics
	Now        func() time.Time
}

func NewOutboxWorker(logger *slog.Logger, outbox ports.OutboxRepository, publisher ports.EventPublisher, opts OutboxOptions) *OutboxWorker {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Interval <= 0 {
		opts.Interval = 2 * time.Second
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.Metrics == nil {
		opts.Metrics = ports.NoopMetrics{}
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &OutboxWorker{
		logger: logger, outbox: outbox, publisher: publisher, metrics: opts.Metrics,
		interval: opts.Interval, batchSize: opts.BatchSize, maxRetries: opts.MaxRetries, now: opts.Now,
	}
}

func (w *OutboxWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		if _, err := w.ProcessOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			w.logger.ErrorContext(ctx, "outbox iteration failed",
				"module", "events.outbox_worker",
				"layer", "adapter",
				"operation", "process_once",
				"outcome", "failure",
				"error", err,
			)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// ProcessOnce relays one batch and returns how many rows were published.
func (w *OutboxWorker) ProcessOnce(ctx context.Context) (int, error) {
	records, err := w.outbox.FetchUnpublished(ctx, w.batchSize)
	if err != nil {
		return 0, err
	}
	published := 0
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return published, err
		}
		if w.maxRetries > 0 && rec.RetryCount >= w.maxRetries {
			continue
		}
		now := w.now()
		if err := w.publisher.Publish(ctx, rec.EventType, rec.Payload, rec.PartitionKey); err != nil {
			w.metrics.OutboxRelayed(rec.EventType, "failure")
			w.logger.WarnContext(ctx, "outbox publish failed",
				"module", "events.outbox_worker",
				"layer", "adapter",
				"operation", "publish",
				"outcome", "failure",
				"outbox_id", rec.OutboxID.String(),
				"event_type", rec.EventType,
				"retry_count", rec.RetryCount+1,
				"error", err,
			)
			if markErr := w.outbox.MarkFailed(ctx, rec.OutboxID, err.Error(), now); markErr != nil {
				return published, markErr
			}
			continue
		}
		if err := w.outbox.MarkPublished(ctx, rec.OutboxID, now); err != nil {
			return published, err
		}
		w.metrics.OutboxRelayed(rec.EventType, "success")
		published++
	}
	return published, nil
}
