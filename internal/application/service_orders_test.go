package application_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/viralforge/mesh/services/financial-rails/M92-payment-attribution-service/internal/adapters/memory"
	"github.com/viralforge/mesh/services/financial-rails/M92-payment-attribution-service/internal/application"
	"github.com/viralforge/mesh/services/financial-rails/M92-payment-attribution-service/internal/domain"
	"github.com/viralforge/mesh/services/financial-rails/M92-payment-attribution-service/internal/ports"
)

func validOrderInput() application.CreateOrderInput {
	return application.CreateOrderInput{
		AmountMinor: 2_200_000,
		Currency:    "inr",
		Customer:    domain.Customer{Name: " Ravi Kumar ", Email: "Ravi@Example.com", Phone: "+919800000000"},
	}
}

func TestCreateOrderPersistsCreatedOrder(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	in := validOrderInput()
	in.ReferralCode = "ref-ab12c3"
	out, err := f.svc.CreateOrder(context.Background(), in)
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if out.ID != "order_1" || out.Amount != 2_200_000 || out.Currency != "INR" || out.Key != "rzp_test_key" {
		t.Fatalf("unexpected summary: %+v", out)
	}
	order, err := f.svc.GetOrder(context.Background(), out.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if order.Status != domain.PaymentStatusCreated || order.Customer.Email != "ravi@example.com" || order.Customer.Name != "Ravi Kumar" {
		t.Fatalf("unexpected order: %+v", order)
	}
	code, ok := order.Referral.Code()
	if !ok || code != "ref-ab12c3" {
		t.Fatalf("referral code must be stored verbatim, got %q ok=%v", code, ok)
	}
	if order.Notes["referral_code"] != "ref-ab12c3" {
		t.Fatalf("expected referral code note, got %v", order.Notes)
	}
}

func TestCreateOrderWithoutReferral(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	in := validOrderInput()
	in.ReferralCode = "   "
	out, err := f.svc.CreateOrder(context.Background(), in)
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	order, _ := f.svc.GetOrder(context.Background(), out.ID)
	if _, ok := order.Referral.Code(); ok {
		t.Fatalf("blank code must be NoReferral")
	}
}

func TestCreateOrderValidation(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	cases := map[string]func(*application.CreateOrderInput){
		"zero amount":    func(in *application.CreateOrderInput) { in.AmountMinor = 0 },
		"missing phone":  func(in *application.CreateOrderInput) { in.Customer.Phone = "" },
		"missing name":   func(in *application.CreateOrderInput) { in.Customer.Name = " " },
		"invalid email":  func(in *application.CreateOrderInput) { in.Customer.Email = "ravi-at-example" },
		"bad currency":   func(in *application.CreateOrderInput) { in.Currency = "RUPEE" },
		"digit currency": func(in *application.CreateOrderInput) { in.Currency = "IN1" },
	}
	for name, mutate := range cases {
		in := validOrderInput()
		mutate(&in)
		if _, err := f.svc.CreateOrder(context.Background(), in); !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("%s: expected ErrInvalidInput, got %v", name, err)
		}
	}
	if f.gateway.Calls() != 0 {
		t.Fatalf("gateway must not be called for invalid input")
	}
}

func TestCreateOrderDefaultsCurrency(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	in := validOrderInput()
	in.Currency = ""
	out, err := f.svc.CreateOrder(context.Background(), in)
	if err != nil || out.Currency != "INR" {
		t.Fatalf("expected INR default: %+v err=%v", out, err)
	}
}

func TestCreateOrderGatewayFailures(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.gateway.err = &domain.GatewayError{StatusCode: 400, Code: "BAD_REQUEST_ERROR", Reason: "amount too small"}
	_, err := f.svc.CreateOrder(context.Background(), validOrderInput())
	var gwErr *domain.GatewayError
	if !errors.As(err, &gwErr) || !errors.Is(err, domain.ErrGatewayFailure) {
		t.Fatalf("expected GatewayError, got %v", err)
	}
	if got := f.store.Counts().Orders; got != 0 {
		t.Fatalf("no order should be persisted, got %d", got)
	}

	store := memory.NewStore()
	repos := store.Repositories()
	svc, err := application.NewService(application.Dependencies{Orders: repos.Orders, UnitOfWork: store})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if _, err := svc.CreateOrder(context.Background(), validOrderInput()); !errors.Is(err, domain.ErrGatewayNotConfigured) {
		t.Fatalf("expected ErrGatewayNotConfigured, got %v", err)
	}
}

func TestCreateOrderIdempotencyKey(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	in := validOrderInput()
	in.IdempotencyKey = "idem-1"

	first, err := f.svc.CreateOrder(ctx, in)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	replay, err := f.svc.CreateOrder(ctx, in)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if replay != first || f.gateway.Calls() != 1 {
		t.Fatalf("replay must return stored summary without a gateway call: %+v calls=%d", replay, f.gateway.Calls())
	}
	in.AmountMinor = 999
	if _, err := f.svc.CreateOrder(ctx, in); !errors.Is(err, domain.ErrIdempotencyConflict) {
		t.Fatalf("expected ErrIdempotencyConflict, got %v", err)
	}
}

func TestCreateOrderIdempotencyKeyReleasedOnGatewayFailure(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	in := validOrderInput()
	in.IdempotencyKey = "idem-retry"

	f.gateway.err = &domain.GatewayError{StatusCode: 0, Reason: "connection reset"}
	if _, err := f.svc.CreateOrder(ctx, in); !errors.Is(err, domain.ErrGatewayFailure) {
		t.Fatalf("expected gateway failure, got %v", err)
	}
	f.gateway.err = nil
	out, err := f.svc.CreateOrder(ctx, in)
	if err != nil {
		t.Fatalf("retry after gateway failure must be accepted: %v", err)
	}
	if out.ID == "" {
		t.Fatalf("expected an order id")
	}
}

// completeFailingIdempotency reserves normally but cannot store the response.
type completeFailingIdempotency struct {
	ports.IdempotencyRepository
}

func (completeFailingIdempotency) Complete(context.Context, string, int, []byte, time.Time) error {
	return errors.New("connection reset by peer")
}

func TestCreateOrderLogsIdempotencyCompletionFailure(t *testing.T) {
	t.Parallel()
	var logs bytes.Buffer
	f := newFixture(t, func(d *application.Dependencies) {
		d.Idempotency = completeFailingIdempotency{d.Idempotency}
		d.Logger = slog.New(slog.NewJSONHandler(&logs, nil))
	})
	in := validOrderInput()
	in.IdempotencyKey = "idem-complete"
	out, err := f.svc.CreateOrder(context.Background(), in)
	if err != nil {
		t.Fatalf("order must still be returned: %v", err)
	}
	line := logs.String()
	if !strings.Contains(line, `"msg":"complete idempotency key failed"`) || !strings.Contains(line, `"order_id":"`+out.ID+`"`) {
		t.Fatalf("expected completion failure warning with order id, got %s", line)
	}
	if _, err := f.svc.GetOrder(context.Background(), out.ID); err != nil {
		t.Fatalf("order must be persisted: %v", err)
	}
}
