package ports

import "context"

type NotificationKind string

const (
	NotificationPaymentCaptured   NotificationKind = "payment.captured"
	NotificationReferralConverted NotificationKind = "referral.converted"
	NotificationSecurityAlert     NotificationKind = "security.webhook_signature"
)

type Notification struct {
	Kind      NotificationKind
	Recipient string
	Subject   string
	Fields    map[string]string
}

// Notifier delivers best-effort messages after state has been committed.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}
