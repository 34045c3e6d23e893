package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
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

const (
	testWebhookSecret = "whsec_router"
	testJWTSecret     = "jwt_router_secret"
)

type fakeGateway struct {
	mu sync.Mutex
	n  int
}

func (g *fakeGateway) CreateOrder(_ context.Context, in ports.CreateGatewayOrderInput) (ports.GatewayOrder, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return ports.GatewayOrder{ID: fmt.Sprintf("order_%d", g.n), AmountMinor: in.AmountMinor, Currency: in.Currency, Status: "created"}, nil
}

func (g *fakeGateway) PublicKey() string { return "rzp_test_key" }

type testServer struct {
	srv      *httptest.Server
	store    *memory.Store
	repos    *memory.Repositories
	notifier *notify.Recorder
	jwt      *security.JWTAuthenticator
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := memory.NewStore()
	repos := store.Repositories()
	rec := &notify.Recorder{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc, err := application.NewService(application.Dependencies{
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
		Gateway:     &fakeGateway{},
		Verifier:    security.NewHMACVerifier(testWebhookSecret),
		Notifier:    rec,
		Logger:      logger,
		Now:         func() time.Time { return time.Date(2026, 4, 15, 10, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	auth, err := security.NewJWTAuthenticator(testJWTSecret, "")
	if err != nil {
		t.Fatalf("jwt: %v", err)
	}
	srv := httptest.NewServer(NewRouter(NewHandler(svc, Options{Tokens: auth, Logger: logger})))
	t.Cleanup(srv.Close)
	return &testServer{srv: srv, store: store, repos: repos, notifier: rec, jwt: auth}
}

func (s *testServer) token(t *testing.T, userID, role string) string {
	t.Helper()
	tok, err := s.jwt.Sign(ports.AuthClaims{UserID: userID, Role: role, ExpiresAt: time.Now().Add(time.Hour)})
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return tok
}

func (s *testServer) do(t *testing.T, method, path string, body []byte, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, s.srv.URL+path, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := s.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	return resp, raw
}

func (s *testServer) webhook(t *testing.T, body []byte, signature string) (*http.Response, []byte) {
	t.Helper()
	return s.do(t, http.MethodPost, "/v1/webhooks/payments", body, map[string]string{
		"X-Razorpay-Signature": signature,
		"X-Razorpay-Event-Id":  "evt_1",
	})
}

func seedAffiliate(t *testing.T, s *testServer) {
	t.Helper()
	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	err := s.repos.Affiliates.Create(context.Background(), domain.AffiliateProfile{
		AffiliateID: "aff_1", UserID: "user-aff", ReferralCode: "REF-AB12C3",
		FirmName: "Sharma & Co", ContactName: "Anita", ContactEmail: "anita@partners.example.com",
		Status: domain.AffiliateStatusActive, CreatedAt: now, UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("seed affiliate: %v", err)
	}
}

func capturedPayload(orderID string, amount int64) []byte {
	return []byte(fmt.Sprintf(`{"entity":"event","event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_1","order_id":%q,"amount":%d,"currency":"INR","status":"captured"}}}}`, orderID, amount))
}

func TestReferralToCommissionOverHTTP(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	seedAffiliate(t, s)
	affAuth := map[string]string{"Authorization": "Bearer " + s.token(t, "user-aff", "affiliate")}

	resp, body := s.do(t, http.MethodPost, "/v1/referrals", []byte(`{"referredEmail":"buyer@example.com","referredName":"Buyer"}`), affAuth)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("submit referral: %d %s", resp.StatusCode, body)
	}
	resp, body = s.do(t, http.MethodPost, "/v1/referrals", []byte(`{"referredEmail":"BUYER@example.com","referredName":"Buyer"}`), affAuth)
	var dup struct {
		Success bool   `json:"success"`
		Code    string `json:"code"`
	}
	_ = json.Unmarshal(body, &dup)
	if resp.StatusCode != http.StatusConflict || dup.Success || dup.Code != "DUPLICATE_REFERRAL" {
		t.Fatalf("duplicate referral: %d %s", resp.StatusCode, body)
	}

	resp, body = s.do(t, http.MethodPost, "/v1/orders", []byte(`{"amount":2200000,"currency":"INR","customerDetails":{"name":"Buyer","email":"buyer@example.com","phone":"+919800000000"},"referralCode":"REF-AB12C3"}`), nil)
	var created struct {
		Success bool   `json:"success"`
		ID      string `json:"id"`
		Key     string `json:"key"`
	}
	if err := json.Unmarshal(body, &created); err != nil || resp.StatusCode != http.StatusOK || !created.Success || created.Key != "rzp_test_key" {
		t.Fatalf("create order: %d %s", resp.StatusCode, body)
	}

	payload := capturedPayload(created.ID, 2_200_000)
	sig := security.Sign(testWebhookSecret, payload)
	for i := 0; i < 2; i++ {
		resp, body = s.webhook(t, payload, sig)
		if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `"status":"ok"`) {
			t.Fatalf("delivery %d: %d %s", i+1, resp.StatusCode, body)
		}
	}
	if got := resp.Header.Get("X-Webhook-Outcome"); got != string(domain.OutcomeDuplicate) {
		t.Fatalf("second delivery outcome = %q", got)
	}

	counts := s.store.Counts()
	if counts.Invoices != 1 || counts.Commissions != 1 {
		t.Fatalf("unexpected counts after double delivery: %+v", counts)
	}

	resp, body = s.do(t, http.MethodGet, "/v1/commissions", nil, affAuth)
	var list struct {
		Data []struct {
			Amount int64  `json:"amount"`
			Status string `json:"status"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &list); err != nil || resp.StatusCode != http.StatusOK || len(list.Data) != 1 || list.Data[0].Amount != 220_000 {
		t.Fatalf("list commissions: %d %s", resp.StatusCode, body)
	}

	adminAuth := map[string]string{"Authorization": "Bearer " + s.token(t, "admin-1", "admin")}
	resp, body = s.do(t, http.MethodGet, "/v1/admin/orders/"+created.ID+"/invoice", nil, adminAuth)
	var inv struct {
		Data struct {
			Number string `json:"invoiceNumber"`
			Tax    int64  `json:"tax"`
			Total  int64  `json:"total"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &inv); err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("get invoice: %d %s", resp.StatusCode, body)
	}
	if inv.Data.Number != "INV-202604-000001" || inv.Data.Tax != 396_000 || inv.Data.Total != 2_596_000 {
		t.Fatalf("unexpected invoice: %+v", inv.Data)
	}

	resp, _ = s.do(t, http.MethodGet, "/v1/orders/"+created.ID, nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get order: %d", resp.StatusCode)
	}
}

func TestWebhookSignatureFailures(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	resp, body := s.do(t, http.MethodPost, "/v1/orders", []byte(`{"amount":1000,"customerDetails":{"name":"Buyer","email":"buyer@example.com","phone":"+91"}}`), nil)
	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &created); err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("create order: %d %s", resp.StatusCode, body)
	}
	payload := capturedPayload(created.ID, 1000)

	resp, _ = s.webhook(t, payload, security.Sign("wrong-secret", payload))
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad signature: expected 401, got %d", resp.StatusCode)
	}
	resp, _ = s.webhook(t, payload, "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing signature: expected 400, got %d", resp.StatusCode)
	}
	if got := s.store.Counts().Invoices; got != 0 {
		t.Fatalf("rejected deliveries must not write, got %d invoices", got)
	}
	if got := s.notifier.Count(ports.NotificationSecurityAlert); got != 2 {
		t.Fatalf("expected 2 security alerts, got %d", got)
	}

	order, err := s.repos.Orders.GetByID(context.Background(), created.ID)
	if err != nil || order.Status != domain.PaymentStatusCreated {
		t.Fatalf("order must stay created: %+v err=%v", order, err)
	}
}

func TestWebhookMalformedAndUnknownOrder(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	bad := []byte(`{"event":`)
	resp, _ := s.webhook(t, bad, security.Sign(testWebhookSecret, bad))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("malformed: expected 400, got %d", resp.StatusCode)
	}
	orphan := capturedPayload("order_missing", 1000)
	resp, _ = s.webhook(t, orphan, security.Sign(testWebhookSecret, orphan))
	if resp.StatusCode != http.StatusOK || resp.Header.Get("X-Webhook-Outcome") != string(domain.OutcomeSkippedUnknownOrder) {
		t.Fatalf("unknown order should be acknowledged, got %d", resp.StatusCode)
	}
}

func TestAuthenticatedRoutesRequireToken(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	for _, path := range []string{"/v1/referrals", "/v1/affiliates/me", "/v1/commissions"} {
		resp, _ := s.do(t, http.MethodGet, path, nil, nil)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("%s without token: expected 401, got %d", path, resp.StatusCode)
		}
	}
	resp, _ := s.do(t, http.MethodGet, "/v1/affiliates/me", nil, map[string]string{"Authorization": "Bearer not-a-jwt"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("garbage token: expected 401, got %d", resp.StatusCode)
	}
	affAuth := map[string]string{"Authorization": "Bearer " + s.token(t, "user-9", "affiliate")}
	resp, _ = s.do(t, http.MethodPut, "/v1/admin/affiliates/aff_1/status", []byte(`{"status":"inactive"}`), affAuth)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("non-admin on admin route: expected 403, got %d", resp.StatusCode)
	}
}

func TestAffiliateSignupFlow(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	auth := map[string]string{"Authorization": "Bearer " + s.token(t, "user-new", "affiliate")}
	resp, body := s.do(t, http.MethodPost, "/v1/affiliates", []byte(`{"firmName":"Acme","contactName":"Ann","contactEmail":"ann@acme.example"}`), auth)
	var out struct {
		Data struct {
			ReferralCode string `json:"referralCode"`
			Status       string `json:"status"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &out); err != nil || resp.StatusCode != http.StatusCreated {
		t.Fatalf("register: %d %s", resp.StatusCode, body)
	}
	if !strings.HasPrefix(out.Data.ReferralCode, "REF-") || out.Data.Status != "active" {
		t.Fatalf("unexpected affiliate: %+v", out.Data)
	}
	resp, body = s.do(t, http.MethodGet, "/v1/affiliates/me", nil, auth)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), out.Data.ReferralCode) {
		t.Fatalf("get me: %d %s", resp.StatusCode, body)
	}
}

func TestMapDomainError(t *testing.T) {
	t.Parallel()
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{domain.ErrDuplicateReferral, http.StatusConflict, "DUPLICATE_REFERRAL"},
		{fmt.Errorf("wrap: %w", domain.ErrDuplicate), http.StatusConflict, "DUPLICATE"},
		{&domain.GatewayError{StatusCode: 400, Reason: "bad amount"}, http.StatusBadGateway, "GATEWAY_ERROR"},
		{domain.ErrGatewayNotConfigured, http.StatusInternalServerError, "GATEWAY_NOT_CONFIGURED"},
		{&domain.CodeSpaceExhaustedError{Attempts: 3}, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE"},
		{fmt.Errorf("%w: timeout", domain.ErrStorageUnavailable), http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE"},
		{domain.ErrInvalidTransition, http.StatusConflict, "INVALID_TRANSITION"},
		{domain.ErrRateLimitExceeded, http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED"},
		{domain.ErrMissingSignature, http.StatusBadRequest, "MISSING_SIGNATURE"},
		{domain.ErrInvalidSignature, http.StatusUnauthorized, "INVALID_SIGNATURE"},
	}
	for _, tc := range cases {
		status, code, _ := mapDomainError(tc.err)
		if status != tc.status || code != tc.code {
			t.Fatalf("%v: got %d %s want %d %s", tc.err, status, code, tc.status, tc.code)
		}
	}
}
