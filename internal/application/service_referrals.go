package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/financial-rails/M92-payment-attribution-service/internal/contracts"
	"github.com/viralforge/mesh/services/financial-rails/M92-payment-attribution-service/internal/domain"
	"github.com/viralforge/mesh/services/financial-rails/M92-payment-attribution-service/internal/ports"
)

type conversion struct {
	affiliate  domain.AffiliateProfile
	referral   domain.Referral
	commission domain.CommissionEntry
}

// SubmitReferral records a pending lead for the calling affiliate. Admins may
// submit on behalf of an affiliate by setting AffiliateID.
func (s *Service) SubmitReferral(ctx context.Context, actor Actor, in SubmitReferralInput) (domain.Referral, error) {
	if err := requireSubject(actor); err != nil {
		return domain.Referral{}, err
	}
	email := domain.NormalizeEmail(in.ReferredEmail)
	name := strings.TrimSpace(in.ReferredName)
	firm := strings.TrimSpace(in.FirmName)
	if email == "" || name == "" {
		return domain.Referral{}, fmt.Errorf("%w: referred email and name are required", domain.ErrInvalidInput)
	}
	if !domain.ValidEmail(email) {
		return domain.Referral{}, fmt.Errorf("%w: invalid referred email", domain.ErrInvalidInput)
	}

	aff, err := s.resolveAffiliate(ctx, actor, in.AffiliateID)
	if err != nil {
		return domain.Referral{}, err
	}
	if aff.Status != domain.AffiliateStatusActive {
		return domain.Referral{}, fmt.Errorf("%w: affiliate is inactive", domain.ErrForbidden)
	}
	if err := s.allowReferralSubmission(ctx, aff.AffiliateID); err != nil {
		return domain.Referral{}, err
	}

	pending, err := s.referrals.HasPending(ctx, aff.AffiliateID, email)
	if err != nil {
		return domain.Referral{}, domain.Persistence(err)
	}
	if pending {
		return domain.Referral{}, domain.ErrDuplicateReferral
	}
	row := domain.Referral{
		ReferralID:    "referral_" + uuid.NewString(),
		AffiliateID:   aff.AffiliateID,
		ReferredEmail: email,
		ReferredName:  name,
		FirmName:      firm,
		Status:        domain.ReferralStatusPending,
		CreatedAt:     s.nowFn(),
	}
	if err := s.referrals.Create(ctx, row); err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			return domain.Referral{}, domain.ErrDuplicateReferral
		}
		return domain.Referral{}, domain.Persistence(err)
	}
	s.logger.InfoContext(ctx, "referral submitted",
		"module", "application.referrals",
		"layer", "application",
		"operation", "submit_referral",
		"outcome", "success",
		"affiliate_id", aff.AffiliateID,
		"referral_id", row.ReferralID,
	)
	return row, nil
}

func (s *Service) ListReferrals(ctx context.Context, actor Actor) ([]domain.Referral, error) {
	aff, err := s.resolveAffiliate(ctx, actor, "")
	if err != nil {
		return nil, err
	}
	return s.referrals.ListByAffiliate(ctx, aff.AffiliateID)
}

// ConvertReferral attributes the payment to the affiliate owning code. It
// returns nil without error when the code is unknown or no pending referral
// matches the buyer.
func (s *Service) ConvertReferral(ctx context.Context, code, paymentID string) (*domain.CommissionEntry, error) {
	code = strings.TrimSpace(code)
	paymentID = strings.TrimSpace(paymentID)
	if code == "" || paymentID == "" {
		return nil, domain.ErrInvalidInput
	}
	now := s.nowFn()
	var conv *conversion
	err := s.uow.WithinTx(ctx, func(ctx context.Context, tx ports.TxRepositories) error {
		order, err := tx.Orders.GetByPaymentID(ctx, paymentID)
		if err != nil {
			return err
		}
		if order.Status != domain.PaymentStatusCaptured {
			return fmt.Errorf("%w: order %s is %s", domain.ErrInvalidTransition, order.OrderID, order.Status)
		}
		conv, err = s.convertWithin(ctx, tx, code, order, paymentID, now)
		return err
	})
	if err != nil {
		return nil, domain.Persistence(err)
	}
	if conv == nil {
		return nil, nil
	}
	s.afterConversion(ctx, conv)
	return &conv.commission, nil
}

func (s *Service) convertWithin(ctx context.Context, tx ports.TxRepositories, code string, order domain.PaymentOrder, paymentID string, now time.Time) (*conversion, error) {
	normalized := domain.NormalizeReferralCode(code)
	aff, err := tx.Affiliates.GetByCode(ctx, normalized)
	if errors.Is(err, domain.ErrNotFound) {
		s.logConversionSkip(ctx, order.OrderID, "unknown_referral_code", "")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if aff.Status != domain.AffiliateStatusActive {
		s.logConversionSkip(ctx, order.OrderID, "affiliate_inactive", aff.AffiliateID)
		return nil, nil
	}

	ref, err := s.matchPendingReferral(ctx, tx.Referrals, aff.AffiliateID, order)
	if errors.Is(err, domain.ErrNotFound) {
		s.logConversionSkip(ctx, order.OrderID, "no_pending_referral", aff.AffiliateID)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	converted, err := tx.Referrals.MarkConverted(ctx, ref.ReferralID, paymentID, now)
	if err != nil {
		return nil, err
	}
	if !converted {
		s.logConversionSkip(ctx, order.OrderID, "referral_no_longer_pending", aff.AffiliateID)
		return nil, nil
	}
	ref.Status = domain.ReferralStatusConverted
	ref.ConvertedAt = &now
	ref.ConvertedByPaymentID = paymentID

	entry := domain.CommissionEntry{
		CommissionID: "comm_" + uuid.NewString(),
		AffiliateID:  aff.AffiliateID,
		ReferralID:   ref.ReferralID,
		OrderID:      order.OrderID,
		PaymentID:    paymentID,
		AmountMinor:  domain.CommissionAmount(order.AmountMinor, s.cfg.CommissionRatePercent),
		Currency:     order.Currency,
		Status:       domain.CommissionStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := tx.Commissions.Create(ctx, entry); err != nil {
		return nil, fmt.Errorf("create commission: %w", err)
	}
	if err := s.enqueueEvent(ctx, tx.Outbox, contracts.EventReferralConverted, "data.affiliate_id", aff.AffiliateID, contracts.ReferralConvertedPayload{
		AffiliateID: aff.AffiliateID, ReferralID: ref.ReferralID, OrderID: order.OrderID, PaymentID: paymentID, ConvertedAt: formatTime(now),
	}, now); err != nil {
		return nil, err
	}
	if err := s.enqueueEvent(ctx, tx.Outbox, contracts.EventCommissionCreated, "data.affiliate_id", aff.AffiliateID, contracts.CommissionCreatedPayload{
		CommissionID: entry.CommissionID, AffiliateID: aff.AffiliateID, ReferralID: ref.ReferralID, Amount: entry.AmountMinor, Currency: entry.Currency, Status: string(entry.Status), CreatedAt: formatTime(now),
	}, now); err != nil {
		return nil, err
	}
	return &conversion{affiliate: aff, referral: ref, commission: entry}, nil
}

// matchPendingReferral matches on the buyer email. Only orders without an
// email fall back to the firm-name heuristic, oldest pending referral first.
func (s *Service) matchPendingReferral(ctx context.Context, referrals ports.ReferralRepository, affiliateID string, order domain.PaymentOrder) (domain.Referral, error) {
	if email := domain.NormalizeEmail(order.Customer.Email); email != "" {
		return referrals.FindPendingByEmail(ctx, affiliateID, email)
	}
	if strings.TrimSpace(order.Customer.Company) == "" {
		return domain.Referral{}, domain.ErrNotFound
	}
	pending, err := referrals.ListPendingByAffiliate(ctx, affiliateID)
	if err != nil {
		return domain.Referral{}, err
	}
	for _, ref := range pending {
		if domain.FirmNameMatches(order.Customer.Company, ref.FirmName) {
			s.logger.WarnContext(ctx, "referral matched by firm name",
				"module", "application.referrals",
				"layer", "application",
				"operation", "match_referral",
				"outcome", "firm_name_fallback",
				"affiliate_id", affiliateID,
				"referral_id", ref.ReferralID,
				"order_id", order.OrderID,
			)
			return ref, nil
		}
	}
	return domain.Referral{}, domain.ErrNotFound
}

func (s *Service) afterConversion(ctx context.Context, conv *conversion) {
	s.metrics.CommissionCreated(conv.commission.Currency, conv.commission.AmountMinor)
	s.logger.InfoContext(ctx, "referral converted",
		"module", "application.referrals",
		"layer", "application",
		"operation", "convert_referral",
		"outcome", "success",
		"affiliate_id", conv.affiliate.AffiliateID,
		"referral_id", conv.referral.ReferralID,
		"commission_id", conv.commission.CommissionID,
	)
	s.notify(ctx, ports.Notification{
		Kind:      ports.NotificationReferralConverted,
		Recipient: conv.affiliate.ContactEmail,
		Subject:   fmt.Sprintf("Your referral %s has converted", conv.referral.ReferredName),
		Fields: map[string]string{
			"affiliate_id":  conv.affiliate.AffiliateID,
			"referral_id":   conv.referral.ReferralID,
			"commission_id": conv.commission.CommissionID,
			"amount":        fmt.Sprintf("%d", conv.commission.AmountMinor),
			"currency":      conv.commission.Currency,
		},
	})
}

func (s *Service) logConversionSkip(ctx context.Context, orderID, reason, affiliateID string) {
	s.logger.InfoContext(ctx, "referral conversion skipped",
		"module", "application.referrals",
		"layer", "application",
		"operation", "convert_referral",
		"outcome", reason,
		"order_id", orderID,
		"affiliate_id", affiliateID,
	)
}

func (s *Service) allowReferralSubmission(ctx context.Context, affiliateID string) error {
	if s.cache == nil || s.cfg.ReferralRateLimit <= 0 {
		return nil
	}
	n, err := s.cache.IncrWithTTL(ctx, "referral:submit:"+affiliateID, s.cfg.ReferralRateWindow)
	if err != nil {
		s.logger.WarnContext(ctx, "referral rate limiter unavailable",
			"module", "application.referrals",
			"layer", "application",
			"operation", "rate_limit",
			"outcome", "fail_open",
			"error", err,
		)
		return nil
	}
	if n > int64(s.cfg.ReferralRateLimit) {
		return domain.ErrRateLimitExceeded
	}
	return nil
}

// resolveAffiliate returns the caller's profile, or the named one for admins.
func (s *Service) resolveAffiliate(ctx context.Context, actor Actor, affiliateID string) (domain.AffiliateProfile, error) {
	if err := requireSubject(actor); err != nil {
		return domain.AffiliateProfile{}, err
	}
	affiliateID = strings.TrimSpace(affiliateID)
	if affiliateID != "" {
		if !isAdmin(actor) {
			return domain.AffiliateProfile{}, domain.ErrForbidden
		}
		return s.affiliates.GetByID(ctx, affiliateID)
	}
	aff, err := s.affiliates.GetByUserID(ctx, actor.SubjectID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.AffiliateProfile{}, fmt.Errorf("%w: caller has no affiliate profile", domain.ErrNotFound)
	}
	return aff, err
}
