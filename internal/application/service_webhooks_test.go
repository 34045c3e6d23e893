package application_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/viralforge/mesh/services/financial-rails/M92-payment-attribution-service/internal/adapters/memory"
	"github.com/viralforge/mesh/services/financial-rails/M92-payment-attribution-service/internal/application"
	"github.com/viralforge/mesh/services/financial-rails/M92-payment-attribution-service/internal/domain"
	"github.com/viralforge/mesh/services/financial-rails/M92-payment-attribution-service/internal/ports"
)

func TestCaptureWithReferralIsAppliedOnceUnderRedelivery(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	aff := f.seedAffiliate(t, "user-aff", "REF-AB12C3")
	ref, err := f.svc.SubmitReferral(ctx, application.Actor{SubjectID: "user-aff"}, application.SubmitReferralInput{
		ReferredEmail: "buyer@example.com",
		ReferredName:  "Buyer",
	})
	if err != nil {
		t.Fatalf("submit referral: %v", err)
	}
	order := f.createOrder(t, 2_200_000, "buyer@example.com", "REF-AB12C3")
	body := capturedBody(order.ID, "pay_1", 2_200_000)

	first, err := f.deliver(body)
	if err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if first.Outcome != domain.OutcomeApplied || first.InvoiceNumber != "INV-202604-000001" || first.CommissionID == "" {
		t.Fatalf("unexpected first result: %+v", first)
	}
	after := f.store.Counts()

	second, err := f.deliver(body)
	if err != nil {
		t.Fatalf("second delivery: %v", err)
	}
	if second.Outcome != domain.OutcomeDuplicate {
		t.Fatalf("expected duplicate outcome, got %s", second.Outcome)
	}
	counts := f.store.Counts()
	if counts.Invoices != 1 || counts.Commissions != 1 {
		t.Fatalf("expected one invoice and one commission, got %+v", counts)
	}
	if counts.Outbox != after.Outbox || counts.Outbox != 4 {
		t.Fatalf("redelivery must not enqueue events: before=%d after=%d", after.Outbox, counts.Outbox)
	}
	if counts.Deliveries != 2 {
		t.Fatalf("expected both deliveries logged, got %d", counts.Deliveries)
	}

	invoice, err := f.repos.Invoices.GetByOrderID(ctx, order.ID)
	if err != nil {
		t.Fatalf("get invoice: %v", err)
	}
	if invoice.SubtotalMinor != 2_200_000 || invoice.TaxMinor != 396_000 || invoice.TotalMinor != 2_596_000 || invoice.Status != domain.InvoiceStatusPaid {
		t.Fatalf("unexpected invoice: %+v", invoice)
	}
	commission, err := f.repos.Commissions.GetByID(ctx, first.CommissionID)
	if err != nil {
		t.Fatalf("get commission: %v", err)
	}
	if commission.Status != domain.CommissionStatusPending || commission.AmountMinor != 220_000 || commission.AffiliateID != aff.AffiliateID {
		t.Fatalf("unexpected commission: %+v", commission)
	}
	converted, _ := f.repos.Referrals.GetByID(ctx, ref.ReferralID)
	if converted.Status != domain.ReferralStatusConverted || converted.ConvertedByPaymentID != "pay_1" || converted.ConvertedAt == nil {
		t.Fatalf("unexpected referral: %+v", converted)
	}
	stored, _ := f.repos.Orders.GetByID(ctx, order.ID)
	if stored.Status != domain.PaymentStatusCaptured || stored.GatewayPaymentID != "pay_1" {
		t.Fatalf("unexpected order: %+v", stored)
	}
	if got := f.notifier.Count(ports.NotificationPaymentCaptured); got != 1 {
		t.Fatalf("expected one capture notification, got %d", got)
	}
	if got := f.notifier.Count(ports.NotificationReferralConverted); got != 1 {
		t.Fatalf("expected one conversion notification, got %d", got)
	}
}

func TestConcurrentCaptureDeliveriesApplyOnce(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	f.seedAffiliate(t, "user-aff", "REF-AB12C3")
	if _, err := f.svc.SubmitReferral(ctx, application.Actor{SubjectID: "user-aff"}, application.SubmitReferralInput{
		ReferredEmail: "buyer@example.com",
		ReferredName:  "Buyer",
	}); err != nil {
		t.Fatalf("submit referral: %v", err)
	}
	order := f.createOrder(t, 2_200_000, "buyer@example.com", "REF-AB12C3")
	body := capturedBody(order.ID, "pay_1", 2_200_000)

	const n = 16
	var wg sync.WaitGroup
	results := make([]application.WebhookResult, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.deliver(body)
		}(i)
	}
	wg.Wait()

	applied := 0
	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("delivery %d: %v", i, errs[i])
		}
		switch results[i].Outcome {
		case domain.OutcomeApplied:
			applied++
		case domain.OutcomeDuplicate:
		default:
			t.Fatalf("delivery %d: unexpected outcome %s", i, results[i].Outcome)
		}
	}
	if applied != 1 {
		t.Fatalf("expected exactly one applied delivery, got %d", applied)
	}
	counts := f.store.Counts()
	if counts.Invoices != 1 || counts.Commissions != 1 || counts.Deliveries != n {
		t.Fatalf("unexpected counts: %+v", counts)
	}
	if got := f.notifier.Count(ports.NotificationPaymentCaptured); got != 1 {
		t.Fatalf("expected one capture notification, got %d", got)
	}
	if got := f.notifier.Count(ports.NotificationReferralConverted); got != 1 {
		t.Fatalf("expected one conversion notification, got %d", got)
	}
}

func TestZeroTaxRateIsHonoured(t *testing.T) {
	t.Parallel()
	f := newFixture(t, withConfig(func(c *application.Config) {
		c.TaxRatePercent = decimal.Zero
	}))
	order := f.createOrder(t, 10_000, "buyer@example.com", "")
	res, err := f.deliver(capturedBody(order.ID, "pay_1", 10_000))
	if err != nil || res.Outcome != domain.OutcomeApplied {
		t.Fatalf("capture: res=%+v err=%v", res, err)
	}
	invoice, err := f.repos.Invoices.GetByOrderID(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("get invoice: %v", err)
	}
	if invoice.TaxMinor != 0 || invoice.TotalMinor != invoice.SubtotalMinor || invoice.SubtotalMinor != 10_000 {
		t.Fatalf("zero tax rate must not be replaced: %+v", invoice)
	}
}

func TestNegativeRatesAreRejected(t *testing.T) {
	t.Parallel()
	store := memory.NewStore()
	_, err := application.NewService(application.Dependencies{
		Config:     application.Config{CommissionRatePercent: decimal.NewFromInt(-1)},
		UnitOfWork: store,
	})
	if err == nil {
		t.Fatalf("expected an error for a negative commission rate")
	}
}

func TestOrderPaidAfterCaptureIsDuplicate(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	order := f.createOrder(t, 5000, "buyer@example.com", "")
	if _, err := f.deliver(capturedBody(order.ID, "pay_1", 5000)); err != nil {
		t.Fatalf("capture: %v", err)
	}
	paid := []byte(`{"event":"order.paid","payload":{"order":{"entity":{"id":"` + order.ID + `","amount":5000,"currency":"INR","status":"paid"}},"payment":{"entity":{"id":"pay_1","order_id":"` + order.ID + `"}}}}`)
	res, err := f.deliver(paid)
	if err != nil {
		t.Fatalf("order.paid: %v", err)
	}
	if res.Outcome != domain.OutcomeDuplicate {
		t.Fatalf("expected duplicate, got %s", res.Outcome)
	}
	if got := f.store.Counts().Invoices; got != 1 {
		t.Fatalf("expected one invoice, got %d", got)
	}
}

func TestInvalidSignatureMutatesNothing(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.seedAffiliate(t, "user-aff", "REF-AB12C3")
	order := f.createOrder(t, 2_200_000, "buyer@example.com", "REF-AB12C3")
	body := capturedBody(order.ID, "pay_1", 2_200_000)

	_, err := f.svc.HandleWebhook(context.Background(), application.WebhookInput{RawBody: body, Signature: "deadbeef"})
	if !errors.Is(err, domain.ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
	_, err = f.svc.HandleWebhook(context.Background(), application.WebhookInput{RawBody: body})
	if !errors.Is(err, domain.ErrMissingSignature) {
		t.Fatalf("expected ErrMissingSignature, got %v", err)
	}
	stored, _ := f.repos.Orders.GetByID(context.Background(), order.ID)
	if stored.Status != domain.PaymentStatusCreated {
		t.Fatalf("order must stay created, got %s", stored.Status)
	}
	counts := f.store.Counts()
	if counts.Invoices != 0 || counts.Commissions != 0 || counts.Outbox != 0 || counts.Deliveries != 0 {
		t.Fatalf("expected no writes, got %+v", counts)
	}
	if got := f.notifier.Count(ports.NotificationSecurityAlert); got != 2 {
		t.Fatalf("expected two security alerts, got %d", got)
	}
}

func TestUnknownOrderIsAcknowledged(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	res, err := f.deliver(capturedBody("order_missing", "pay_9", 100))
	if err != nil {
		t.Fatalf("expected ack, got %v", err)
	}
	if res.Outcome != domain.OutcomeSkippedUnknownOrder {
		t.Fatalf("expected skipped_unknown_order, got %s", res.Outcome)
	}
	deliveries := f.store.Deliveries()
	if len(deliveries) != 1 || deliveries[0].Outcome != string(domain.OutcomeSkippedUnknownOrder) {
		t.Fatalf("unexpected delivery log: %+v", deliveries)
	}
}

func TestUnsupportedEventIsIgnored(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	res, err := f.deliver([]byte(`{"event":"refund.processed","payload":{"refund":{"entity":{"id":"rfnd_1"}}}}`))
	if err != nil {
		t.Fatalf("expected ack, got %v", err)
	}
	if res.Outcome != domain.OutcomeIgnoredUnknownEvent {
		t.Fatalf("expected ignored_unknown_event, got %s", res.Outcome)
	}
}

func TestMalformedPayloadIsRejected(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	cases := map[string][]byte{
		"not json":         []byte(`{"event":`),
		"no event":         []byte(`{"payload":{}}`),
		"no payment":       []byte(`{"event":"payment.captured","payload":{}}`),
		"non numeric":      []byte(`{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_1","order_id":"order_1","amount":"abc"}}}}`),
		"order.paid no id": []byte(`{"event":"order.paid","payload":{"order":{"entity":{}}}}`),
	}
	for name, body := range cases {
		if _, err := f.deliver(body); !errors.Is(err, domain.ErrMalformedPayload) {
			t.Fatalf("%s: expected ErrMalformedPayload, got %v", name, err)
		}
	}
}

func TestFailureIsTerminal(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	order := f.createOrder(t, 1000, "buyer@example.com", "")

	res, err := f.deliver(failedBody(order.ID, "pay_1", "card declined"))
	if err != nil || res.Outcome != domain.OutcomeApplied {
		t.Fatalf("failure: res=%+v err=%v", res, err)
	}
	stored, _ := f.repos.Orders.GetByID(context.Background(), order.ID)
	if stored.Status != domain.PaymentStatusFailed || stored.FailureReason != "card declined" || stored.FailedAt == nil {
		t.Fatalf("unexpected order: %+v", stored)
	}

	res, err = f.deliver(failedBody(order.ID, "pay_1", "card declined"))
	if err != nil || res.Outcome != domain.OutcomeDuplicate {
		t.Fatalf("repeat failure: res=%+v err=%v", res, err)
	}
	res, err = f.deliver(capturedBody(order.ID, "pay_2", 1000))
	if err != nil || res.Outcome != domain.OutcomeIgnoredTerminal {
		t.Fatalf("capture after failure: res=%+v err=%v", res, err)
	}
	if got := f.store.Counts().Invoices; got != 0 {
		t.Fatalf("failed order must not be invoiced, got %d", got)
	}
}

func TestNotifierFailureDoesNotRollBackCapture(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.notifier.Err = errors.New("smtp down")
	order := f.createOrder(t, 1000, "buyer@example.com", "")
	res, err := f.deliver(capturedBody(order.ID, "pay_1", 1000))
	if err != nil || res.Outcome != domain.OutcomeApplied {
		t.Fatalf("capture: res=%+v err=%v", res, err)
	}
	if got := f.store.Counts().Invoices; got != 1 {
		t.Fatalf("expected invoice despite notifier failure, got %d", got)
	}
}

// failingInvoices fails every insert to simulate a store outage mid-transaction.
type failingInvoices struct {
	ports.InvoiceRepository
}

func (failingInvoices) Create(context.Context, domain.Invoice) error {
	return errors.New("connection reset by peer")
}

type failingUnitOfWork struct {
	store *memory.Store
	fail  bool
}

func (u *failingUnitOfWork) WithinTx(ctx context.Context, fn func(ctx context.Context, tx ports.TxRepositories) error) error {
	return u.store.WithinTx(ctx, func(ctx context.Context, tx ports.TxRepositories) error {
		if u.fail {
			tx.Invoices = failingInvoices{tx.Invoices}
		}
		return fn(ctx, tx)
	})
}

func TestTransientFailureRollsBackAndAsksForRedelivery(t *testing.T) {
	t.Parallel()
	store := memory.NewStore()
	uow := &failingUnitOfWork{store: store, fail: true}
	f := newFixtureWithStore(t, store, withUnitOfWork(uow))

	order := f.createOrder(t, 1000, "buyer@example.com", "")
	body := capturedBody(order.ID, "pay_1", 1000)
	_, err := f.deliver(body)
	if !errors.Is(err, domain.ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable, got %v", err)
	}
	stored, _ := f.repos.Orders.GetByID(context.Background(), order.ID)
	if stored.Status != domain.PaymentStatusCreated {
		t.Fatalf("transition must roll back, got %s", stored.Status)
	}

	uow.fail = false
	res, err := f.deliver(body)
	if err != nil || res.Outcome != domain.OutcomeApplied {
		t.Fatalf("redelivery: res=%+v err=%v", res, err)
	}
}
