package ports

type Metrics interface {
	WebhookProcessed(eventType, outcome string)
	GatewayRequest(outcome string)
	ReferralCodeCollision()
	CommissionCreated(currency string, amountMinor int64)
	OutboxRelayed(eventType, outcome string)
}

type NoopMetrics struct{}

func (NoopMetrics) WebhookProcessed(string, string) {}
func (NoopMetrics) GatewayRequest(string) {}
func (NoopMetrics) ReferralCodeCollision() {}
func (NoopMetrics) CommissionCreated(string, int64) {}
func (NoopMetrics) OutboxRelayed(string, string) {}
