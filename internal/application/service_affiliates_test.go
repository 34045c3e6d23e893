package application_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/viralforge/mesh/services/financial-rails/M92-payment-attribution-service/internal/application"
	"github.com/viralforge/mesh/services/financial-rails/M92-payment-attribution-service/internal/domain"
)

func register(f *fixture, userID string) (domain.AffiliateProfile, error) {
	return f.svc.RegisterAffiliate(context.Background(), application.Actor{SubjectID: userID}, application.RegisterAffiliateInput{
		FirmName:     "Firm " + userID,
		ContactName:  "Contact " + userID,
		ContactEmail: userID + "@partners.example.com",
	})
}

func TestRegisterAffiliateAllocatesCodeOnce(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	aff, err := register(f, "user-1")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if !strings.HasPrefix(aff.ReferralCode, "REF-") || len(aff.ReferralCode) != len("REF-")+6 {
		t.Fatalf("unexpected code %q", aff.ReferralCode)
	}
	if aff.Status != domain.AffiliateStatusActive {
		t.Fatalf("expected active affiliate, got %s", aff.Status)
	}
	again, err := register(f, "user-1")
	if err != nil || again.AffiliateID != aff.AffiliateID || again.ReferralCode != aff.ReferralCode {
		t.Fatalf("re-register should return the same profile: %+v err=%v", again, err)
	}
	if got := f.store.Counts().Affiliates; got != 1 {
		t.Fatalf("expected one affiliate, got %d", got)
	}
}

func TestConcurrentCodeAllocationYieldsDistinctCodes(t *testing.T) {
	t.Parallel()
	f := newFixture(t, withCache(newMapCache()), withConfig(func(c *application.Config) {
		c.ReferralCodeAlphabet = "ABC"
		c.ReferralCodeLength = 3
		c.ReferralCodeMaxAttempts = 500
	}))

	const n = 12
	var wg sync.WaitGroup
	codes := make([]string, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			aff, err := register(f, fmt.Sprintf("user-%02d", i))
			codes[i], errs[i] = aff.ReferralCode, err
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool, n)
	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("register %d: %v", i, errs[i])
		}
		if seen[codes[i]] {
			t.Fatalf("duplicate code %s", codes[i])
		}
		seen[codes[i]] = true
	}
}

func TestCodeAllocationExhaustion(t *testing.T) {
	t.Parallel()
	f := newFixture(t, withConfig(func(c *application.Config) {
		c.ReferralCodeAlphabet = "A"
		c.ReferralCodeLength = 1
		c.ReferralCodeMaxAttempts = 3
	}))
	first, err := register(f, "user-1")
	if err != nil || first.ReferralCode != "REF-A" {
		t.Fatalf("first register: %+v err=%v", first, err)
	}
	_, err = register(f, "user-2")
	var exhausted *domain.CodeSpaceExhaustedError
	if !errors.As(err, &exhausted) || exhausted.Attempts != 3 {
		t.Fatalf("expected CodeSpaceExhaustedError after 3 attempts, got %v", err)
	}
	if !errors.Is(err, domain.ErrCodeSpaceExhausted) {
		t.Fatalf("expected ErrCodeSpaceExhausted, got %v", err)
	}
}

func TestRegenerateReferralCode(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	aff, err := register(f, "user-1")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	updated, err := f.svc.RegenerateReferralCode(ctx, application.Actor{SubjectID: "user-1"})
	if err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	if updated.ReferralCode == aff.ReferralCode {
		t.Fatalf("expected a new code")
	}
	if _, err := f.repos.Affiliates.GetByCode(ctx, aff.ReferralCode); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("old code must stop resolving, got %v", err)
	}
	me, err := f.svc.GetMyAffiliate(ctx, application.Actor{SubjectID: "user-1"})
	if err != nil || me.ReferralCode != updated.ReferralCode {
		t.Fatalf("get me: %+v err=%v", me, err)
	}
}

func TestSetAffiliateStatusRequiresAdmin(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	aff, _ := register(f, "user-1")
	if _, err := f.svc.SetAffiliateStatus(ctx, application.Actor{SubjectID: "user-1"}, aff.AffiliateID, domain.AffiliateStatusInactive); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	admin := application.Actor{SubjectID: "admin", Role: "admin"}
	if _, err := f.svc.SetAffiliateStatus(ctx, admin, aff.AffiliateID, "suspended"); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	got, err := f.svc.SetAffiliateStatus(ctx, admin, aff.AffiliateID, domain.AffiliateStatusInactive)
	if err != nil || got.Status != domain.AffiliateStatusInactive {
		t.Fatalf("deactivate: %+v err=%v", got, err)
	}
	if _, err := f.svc.SetAffiliateStatus(ctx, admin, "aff_missing", domain.AffiliateStatusActive); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
