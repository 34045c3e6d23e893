package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/viralforge/mesh/services/financial-rails/M92-payment-attribution-service/internal/ports"
)

const namespace = "payment_attribution"

// Prometheus owns a private registry so tests can build as many as they like.
type Prometheus struct {
	registry         *prometheus.Registry
	webhooks         *prometheus.CounterVec
	gateway          *prometheus.CounterVec
	codeCollisions   prometheus.Counter
	commissions      *prometheus.CounterVec
	commissionAmount *prometheus.CounterVec
	outbox           *prometheus.CounterVec
}

func NewPrometheus() *Prometheus {
	reg := prometheus.NewRegistry()
	m := &Prometheus{
		registry: reg,
		webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhooks_processed_total",
			Help:      "Gateway webhook deliveries by event type and outcome.",
		}, []string{"event_type", "outcome"}),
		gateway: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_requests_total",
			Help:      "Order creation calls to the payment gateway.",
		}, []string{"outcome"}),
		codeCollisions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "referral_code_collisions_total",
			Help:      "Referral code candidates rejected because they were taken.",
		}),
		commissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commissions_created_total",
			Help:      "Commission entries created.",
		}, []string{"currency"}),
		commissionAmount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commission_amount_minor_total",
			Help:      "Sum of commission amounts in minor units.",
		}, []string{"currency"}),
		outbox: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_relayed_total",
			Help:      "Outbox rows handed to the event publisher.",
		}, []string{"event_type", "outcome"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.webhooks, m.gateway, m.codeCollisions, m.commissions, m.commissionAmount, m.outbox,
	)
	return m
}

func (m *Prometheus) WebhookProcessed(eventType, outcome string) {
	if eventType == "" {
		eventType = "unknown"
	}
	m.webhooks.WithLabelValues(eventType, outcome).Inc()
}

func (m *Prometheus) GatewayRequest(outcome string) {
	m.gateway.WithLabelValues(outcome).Inc()
}

func (m *Prometheus) ReferralCodeCollision() {
	m.codeCollisions.Inc()
}

func (m *Prometheus) CommissionCreated(currency string, amountMinor int64) {
	m.commissions.WithLabelValues(currency).Inc()
	if amountMinor > 0 {
		m.commissionAmount.WithLabelValues(currency).Add(float64(amountMinor))
	}
}

func (m *Prometheus) OutboxRelayed(eventType, outcome string) {
	m.outbox.WithLabelValues(eventType, outcome).Inc()
}

func (m *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Prometheus) Registry() *prometheus.Registry { return m.registry }

var _ ports.Metrics = (*Prometheus)(nil)
