package events

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/viralforge/mesh/services/financial-rails/M92-payment-attribution-service/internal/contracts"
)

// Topics maps outbox event types to broker topics.
type Topics map[string]string

// For falls back to the event type when no topic is configured.
func (t Topics) For(eventType string) string {
	if mapped, ok := t[eventType]; ok && mapped != "" {
		return mapped
	}
	return eventType
}

// LoggingPublisher stands in for the broker when none is configured. It
// records where each outbox row would have been routed.
type LoggingPublisher struct {
	logger *slog.Logger
	topics Topics
}

func NewLoggingPublisher(logger *slog.Logger, topics Topics) *LoggingPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingPublisher{logger: logger, topics: topics}
}

func (p *LoggingPublisher) Publish(ctx context.Context, eventType string, payload []byte, partitionKey string) error {
	var envelope contracts.EventEnvelope
	_ = json.Unmarshal(payload, &envelope)
	p.logger.InfoContext(ctx, "outbox event routed to log",
		"module", "events.publisher",
		"layer", "adapter",
		"operation", "publish",
		"outcome", "logged",
		"event_type", eventType,
		"event_id", envelope.EventID,
		"topic", p.topics.For(eventType),
		"partition_key", partitionKey,
		"payload_bytes", len(payload),
	)
	return nil
}
