package application_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/viralforge/mesh/services/financial-rails/M92-payment-attribution-service/internal/adapters/memory"
	"github.com/viralforge/mesh/services/financial-rails/M92-payment-attribution-service/internal/adapters/notify"
	"github.com/viralforge/mesh/services/financial-rails/M92-payment-attribution-service/internal/adapters/security"
	"github.com/viralforge/mesh/services/financial-rails/M92-payment-attribution-service/internal/application"
	"github.com/viralforge/mesh/services/financial-rails/M92-payment-attribution-service/internal/domain"
	"github.com/viralforge/mesh/services/financial-rails/M92-payment-attribution-service/internal/ports"
)

const webhookSecret = "whsec_test"

var fixedNow = time.Date(2026, 4, 15, 10, 0, 0, 0, time.UTC)

type stubGateway struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (g *stubGateway) CreateOrder(_ context.Context, in ports.CreateGatewayOrderInput) (ports.GatewayOrder, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.err != nil {
		return ports.GatewayOrder{}, g.err
	}
	return ports.GatewayOrder{ID: fmt.Sprintf("order_%d", g.calls), AmountMinor: in.AmountMinor, Currency: in.Currency, Status: "created"}, nil
}

func (g *stubGateway) PublicKey() string { return "rzp_test_key" }

func (g *stubGateway) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

// mapCache is a goroutine-safe stand-in for redis.
type mapCache struct {
	mu       sync.Mutex
	keys     map[string]string
	counters map[string]int64
	err      error
}

func newMapCache() *mapCache {
	return &mapCache{keys: map[string]string{}, counters: map[string]int64{}}
}

func (c *mapCache) SetNX(_ context.Context, key, value string, _ time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return false, c.err
	}
	if _, ok := c.keys[key]; ok {
		return false, nil
	}
	c.keys[key] = value
	return true, nil
}

func (c *mapCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.keys, k)
	}
	return nil
}

func (c *mapCache) IncrWithTTL(_ context.Context, key string, _ time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return 0, c.err
	}
	c.counters[key]++
	return c.counters[key], nil
}

type fixture struct {
	svc      *application.Service
	store    *memory.Store
	repos    *memory.Repositories
	gateway  *stubGateway
	notifier *notify.Recorder
}

type fixtureOption func(*application.Dependencies)

func withConfig(mut func(*application.Config)) fixtureOption {
	return func(d *application.Dependencies) { mut(&d.Config) }
}

func withCache(c ports.Cache) fixtureOption {
	return func(d *application.Dependencies) { d.Cache = c }
}

func withUnitOfWork(u ports.UnitOfWork) fixtureOption {
	return func(d *application.Dependencies) { d.UnitOfWork = u }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	return newFixtureWithStore(t, memory.NewStore(), opts...)
}

func newFixtureWithStore(t *testing.T, store *memory.Store, opts ...fixtureOption) *fixture {
	t.Helper()
	repos := store.Repositories()
	gw := &stubGateway{}
	rec := &notify.Recorder{}
	deps := application.Dependencies{
		Config: application.Config{
			TaxRatePercent:        decimal.NewFromInt(18),
			CommissionRatePercent: decimal.NewFromInt(10),
		},
		Orders:      repos.Orders,
		Invoices:    repos.Invoices,
		Affiliates:  repos.Affiliates,
		Referrals:   repos.Referrals,
		Commissions: repos.Commissions,
		Deliveries:  repos.Deliveries,
		Idempotency: repos.Idempotency,
		UnitOfWork:  store,
		Gateway:     gw,
		Verifier:    security.NewHMACVerifier(webhookSecret),
		Notifier:    rec,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:         func() time.Time { return fixedNow },
	}
	for _, opt := range opts {
		opt(&deps)
	}
	svc, err := application.NewService(deps)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return &fixture{svc: svc, store: store, repos: repos, gateway: gw, notifier: rec}
}

func (f *fixture) seedAffiliate(t *testing.T, userID, code string) domain.AffiliateProfile {
	t.Helper()
	row := domain.AffiliateProfile{
		AffiliateID:  "aff_" + userID,
		UserID:       userID,
		ReferralCode: code,
		FirmName:     "Sharma & Co",
		ContactName:  "Anita Sharma",
		ContactEmail: userID + "@partners.example.com",
		Status:       domain.AffiliateStatusActive,
		CreatedAt:    fixedNow,
		UpdatedAt:    fixedNow,
	}
	if err := f.repos.Affiliates.Create(context.Background(), row); err != nil {
		t.Fatalf("seed affiliate: %v", err)
	}
	return row
}

func (f *fixture) createOrder(t *testing.T, amount int64, email, code string) application.OrderSummary {
	t.Helper()
	out, err := f.svc.CreateOrder(context.Background(), application.CreateOrderInput{
		AmountMinor:  amount,
		Currency:     "INR",
		Customer:     domain.Customer{Name: "Ravi Kumar", Email: email, Phone: "+919800000000", Company: "Kumar Clinic"},
		ReferralCode: code,
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	return out
}

func capturedBody(orderID, paymentID string, amount int64) []byte {
	return []byte(fmt.Sprintf(`{"entity":"event","event":"payment.captured","payload":{"payment":{"entity":{"id":%q,"order_id":%q,"amount":%d,"currency":"INR","status":"captured"}}}}`, paymentID, orderID, amount))
}

func failedBody(orderID, paymentID, reason string) []byte {
	return []byte(fmt.Sprintf(`{"entity":"event","event":"payment.failed","payload":{"payment":{"entity":{"id":%q,"order_id":%q,"amount":1000,"currency":"INR","status":"failed","error_description":%q}}}}`, paymentID, orderID, reason))
}

func (f *fixture) deliver(body []byte) (application.WebhookResult, error) {
	return f.svc.HandleWebhook(context.Background(), application.WebhookInput{
		RawBody:   body,
		Signature: security.Sign(webhookSecret, body),
		EventID:   "evt_" + fmt.Sprint(len(body)),
	})
}
