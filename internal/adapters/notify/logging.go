package notify

import (
	"context"
	"log/slog"
	"sync"

	"github.com/viralforge/mesh/services/financial-rails/M92-payment-attribution-service/internal/ports"
)

// LoggingNotifier is used when no chat integration is configured.
type LoggingNotifier struct {
	logger *slog.Logger
}

func NewLoggingNotifier(logger *slog.Logger) *LoggingNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingNotifier{logger: logger}
}

func (n *LoggingNotifier) Notify(ctx context.Context, msg ports.Notification) error {
	n.logger.InfoContext(ctx, "notification",
		"module", "adapters.notify",
		"layer", "adapter",
		"operation", string(msg.Kind),
		"outcome", "logged",
		"recipient", msg.Recipient,
		"subject", msg.Subject,
	)
	return nil
}

// Recorder keeps notifications in memory. Err, when set, is returned from
// every call after the notification is recorded.
type Recorder struct {
	mu   sync.Mutex
	sent []ports.Notification
	Err  error
}

func (r *Recorder) Notify(_ context.Context, msg ports.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, msg)
	return r.Err
}

func (r *Recorder) Sent() []ports.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ports.Notification, len(r.sent))
	copy(out, r.sent)
	return out
}

func (r *Recorder) Count(kind ports.NotificationKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, msg := range r.sent {
		if msg.Kind == kind {
			n++
		}
	}
	return n
}

var (
	_ ports.Notifier = (*LoggingNotifier)(nil)
	_ ports.Notifier = (*Recorder)(nil)
)
