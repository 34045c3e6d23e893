package application_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/viralforge/mesh/services/financial-rails/M92-payment-attribution-service/internal/application"
	"github.com/viralforge/mesh/services/financial-rails/M92-payment-attribution-service/internal/domain"
)

var affiliateActor = application.Actor{SubjectID: "user-aff"}

func submit(f *fixture, email string) (domain.Referral, error) {
	return f.svc.SubmitReferral(context.Background(), affiliateActor, application.SubmitReferralInput{
		ReferredEmail: email,
		ReferredName:  "Buyer",
	})
}

func TestDuplicatePendingReferralIsRejected(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.seedAffiliate(t, "user-aff", "REF-AB12C3")

	if _, err := submit(f, "buyer@example.com"); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	_, err := submit(f, "  Buyer@Example.COM ")
	if !errors.Is(err, domain.ErrDuplicateReferral) || !errors.Is(err, domain.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicateReferral, got %v", err)
	}
	if got := f.store.Counts().Referrals; got != 1 {
		t.Fatalf("expected one referral, got %d", got)
	}
}

func TestResubmissionAfterConversionStartsNewCycle(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.seedAffiliate(t, "user-aff", "REF-AB12C3")
	if _, err := submit(f, "buyer@example.com"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	order := f.createOrder(t, 10_000, "buyer@example.com", "REF-AB12C3")
	res, err := f.deliver(capturedBody(order.ID, "pay_1", 10_000))
	if err != nil || res.CommissionID == "" {
		t.Fatalf("capture: res=%+v err=%v", res, err)
	}

	again, err := submit(f, "buyer@example.com")
	if err != nil {
		t.Fatalf("resubmit after conversion: %v", err)
	}
	if again.Status != domain.ReferralStatusPending {
		t.Fatalf("expected pending referral, got %s", again.Status)
	}
	list, err := f.svc.ListReferrals(context.Background(), affiliateActor)
	if err != nil || len(list) != 2 {
		t.Fatalf("list: len=%d err=%v", len(list), err)
	}
}

func TestCaptureWithoutPriorSubmissionCreatesNoCommission(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.seedAffiliate(t, "user-aff", "REF-AB12C3")
	order := f.createOrder(t, 10_000, "stranger@example.com", "REF-AB12C3")

	res, err := f.deliver(capturedBody(order.ID, "pay_1", 10_000))
	if err != nil {
		t.Fatalf("capture must not fail: %v", err)
	}
	if res.Outcome != domain.OutcomeApplied || res.CommissionID != "" {
		t.Fatalf("unexpected result: %+v", res)
	}
	counts := f.store.Counts()
	if counts.Commissions != 0 || counts.Referrals != 0 || counts.Invoices != 1 {
		t.Fatalf("unexpected counts: %+v", counts)
	}
}

func TestUnknownReferralCodeDoesNotFailCapture(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	order := f.createOrder(t, 10_000, "buyer@example.com", "REF-NOPE99")
	res, err := f.deliver(capturedBody(order.ID, "pay_1", 10_000))
	if err != nil || res.Outcome != domain.OutcomeApplied || res.CommissionID != "" {
		t.Fatalf("capture: res=%+v err=%v", res, err)
	}
}

func TestReferralCodeMatchIsCaseInsensitive(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.seedAffiliate(t, "user-aff", "REF-AB12C3")
	if _, err := submit(f, "buyer@example.com"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	order := f.createOrder(t, 10_000, "BUYER@example.com", " ref-ab12c3 ")
	res, err := f.deliver(capturedBody(order.ID, "pay_1", 10_000))
	if err != nil || res.CommissionID == "" {
		t.Fatalf("expected conversion: res=%+v err=%v", res, err)
	}
}

func TestFirmNameFallbackWhenOrderHasNoEmail(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	aff := f.seedAffiliate(t, "user-aff", "REF-AB12C3")
	older := domain.Referral{ReferralID: "ref_old", AffiliateID: aff.AffiliateID, ReferredEmail: "owner@acme.example", ReferredName: "Owner", FirmName: "Acme Dental", Status: domain.ReferralStatusPending, CreatedAt: fixedNow.Add(-2 * time.Hour)}
	newer := domain.Referral{ReferralID: "ref_new", AffiliateID: aff.AffiliateID, ReferredEmail: "desk@acme.example", ReferredName: "Desk", FirmName: "acme", Status: domain.ReferralStatusPending, CreatedAt: fixedNow.Add(-time.Hour)}
	for _, r := range []domain.Referral{newer, older} {
		if err := f.repos.Referrals.Create(ctx, r); err != nil {
			t.Fatalf("seed referral: %v", err)
		}
	}
	order, err := f.svc.CreateOrder(ctx, application.CreateOrderInput{
		AmountMinor:  50_000,
		Currency:     "INR",
		Customer:     domain.Customer{Name: "Front Desk", Phone: "+919800000001", Company: "ACME Dental Clinic"},
		ReferralCode: "REF-AB12C3",
	})
	if err != nil {
		t.Fatalf("create order without email: %v", err)
	}

	res, err := f.deliver(capturedBody(order.ID, "pay_firm", 50_000))
	if err != nil || res.CommissionID == "" {
		t.Fatalf("expected firm-name conversion: res=%+v err=%v", res, err)
	}
	got, _ := f.repos.Referrals.GetByID(ctx, "ref_old")
	if got.Status != domain.ReferralStatusConverted {
		t.Fatalf("expected the oldest matching referral to convert, got %s", got.Status)
	}
	untouched, _ := f.repos.Referrals.GetByID(ctx, "ref_new")
	if untouched.Status != domain.ReferralStatusPending {
		t.Fatalf("newer referral must stay pending, got %s", untouched.Status)
	}
}

func TestInactiveAffiliateDoesNotConvert(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	aff := f.seedAffiliate(t, "user-aff", "REF-AB12C3")
	if _, err := submit(f, "buyer@example.com"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	admin := application.Actor{SubjectID: "admin-1", Role: "admin"}
	if _, err := f.svc.SetAffiliateStatus(ctx, admin, aff.AffiliateID, domain.AffiliateStatusInactive); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	order := f.createOrder(t, 10_000, "buyer@example.com", "REF-AB12C3")
	res, err := f.deliver(capturedBody(order.ID, "pay_1", 10_000))
	if err != nil || res.CommissionID != "" {
		t.Fatalf("inactive affiliate must not earn: res=%+v err=%v", res, err)
	}
	if _, err := submit(f, "other@example.com"); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("inactive affiliate submit: expected ErrForbidden, got %v", err)
	}
}

func TestSubmitReferralValidation(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.svc.SubmitReferral(ctx, application.Actor{}, application.SubmitReferralInput{ReferredEmail: "a@b.co", ReferredName: "A"}); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if _, err := submit(f, "buyer@example.com"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("non-affiliate: expected ErrNotFound, got %v", err)
	}
	f.seedAffiliate(t, "user-aff", "REF-AB12C3")
	if _, err := submit(f, "not-an-email"); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("bad email: expected ErrInvalidInput, got %v", err)
	}
	if _, err := f.svc.SubmitReferral(ctx, affiliateActor, application.SubmitReferralInput{ReferredEmail: "a@b.co"}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("missing name: expected ErrInvalidInput, got %v", err)
	}
	if _, err := f.svc.SubmitReferral(ctx, affiliateActor, application.SubmitReferralInput{AffiliateID: "aff_other", ReferredEmail: "a@b.co", ReferredName: "A"}); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("non-admin on behalf: expected ErrForbidden, got %v", err)
	}
}

func TestReferralSubmissionRateLimit(t *testing.T) {
	t.Parallel()
	cache := newMapCache()
	f := newFixture(t, withCache(cache), withConfig(func(c *application.Config) {
		c.ReferralRateLimit = 2
	}))
	f.seedAffiliate(t, "user-aff", "REF-AB12C3")
	for _, email := range []string{"a@example.com", "b@example.com"} {
		if _, err := submit(f, email); err != nil {
			t.Fatalf("submit %s: %v", email, err)
		}
	}
	if _, err := submit(f, "c@example.com"); !errors.Is(err, domain.ErrRateLimitExceeded) {
		t.Fatalf("expected ErrRateLimitExceeded, got %v", err)
	}

	cache.err = errors.New("redis down")
	if _, err := submit(f, "d@example.com"); err != nil {
		t.Fatalf("limiter must fail open: %v", err)
	}
}

func TestConvertReferralForCapturedPayment(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	f.seedAffiliate(t, "user-aff", "REF-AB12C3")
	order := f.createOrder(t, 30_000, "buyer@example.com", "")
	if _, err := f.deliver(capturedBody(order.ID, "pay_7", 30_000)); err != nil {
		t.Fatalf("capture: %v", err)
	}
	if _, err := submit(f, "buyer@example.com"); err != nil {
		t.Fatalf("submit: %v", err)
	}

	entry, err := f.svc.ConvertReferral(ctx, "REF-AB12C3", "pay_7")
	if err != nil || entry == nil {
		t.Fatalf("convert: entry=%v err=%v", entry, err)
	}
	if entry.AmountMinor != 3_000 || entry.Status != domain.CommissionStatusPending || entry.OrderID != order.ID {
		t.Fatalf("unexpected commission: %+v", entry)
	}
	again, err := f.svc.ConvertReferral(ctx, "REF-AB12C3", "pay_7")
	if err != nil || again != nil {
		t.Fatalf("second conversion should find nothing: entry=%v err=%v", again, err)
	}
	if _, err := f.svc.ConvertReferral(ctx, "REF-AB12C3", "pay_unknown"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("unknown payment: expected ErrNotFound, got %v", err)
	}
}
