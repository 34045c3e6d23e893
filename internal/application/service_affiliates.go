package application

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/financial-rails/M92-payment-attribution-service/internal/domain"
)

const codeReservationPrefix = "referral_code:reserve:"

var errAlreadyRegistered = errors.New("affiliate already registered")

// RegisterAffiliate creates the caller's affiliate profile with a freshly
// allocated referral code. Registering twice returns the existing profile.
func (s *Service) RegisterAffiliate(ctx context.Context, actor Actor, in RegisterAffiliateInput) (domain.AffiliateProfile, error) {
	if err := requireSubject(actor); err != nil {
		return domain.AffiliateProfile{}, err
	}
	firm := strings.TrimSpace(in.FirmName)
	contact := strings.TrimSpace(in.ContactName)
	email := domain.NormalizeEmail(in.ContactEmail)
	if firm == "" || contact == "" || email == "" {
		return domain.AffiliateProfile{}, fmt.Errorf("%w: firm name, contact name and contact email are required", domain.ErrInvalidInput)
	}
	if !domain.ValidEmail(email) {
		return domain.AffiliateProfile{}, fmt.Errorf("%w: invalid contact email", domain.ErrInvalidInput)
	}

	existing, err := s.affiliates.GetByUserID(ctx, actor.SubjectID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.AffiliateProfile{}, domain.Persistence(err)
	}

	now := s.nowFn()
	row := domain.AffiliateProfile{
		AffiliateID:  "aff_" + uuid.NewString(),
		UserID:       actor.SubjectID,
		FirmName:     firm,
		ContactName:  contact,
		ContactEmail: email,
		Phone:        strings.TrimSpace(in.Phone),
		Status:       domain.AffiliateStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	var raced *domain.AffiliateProfile
	code, err := s.allocateCode(ctx, func(ctx context.Context, code string) error {
		row.ReferralCode = code
		err := s.affiliates.Create(ctx, row)
		if errors.Is(err, domain.ErrDuplicate) {
			// a concurrent registration for the same user won the user_id index
			if other, getErr := s.affiliates.GetByUserID(ctx, actor.SubjectID); getErr == nil {
				raced = &other
				return errAlreadyRegistered
			}
		}
		return err
	})
	if errors.Is(err, errAlreadyRegistered) && raced != nil {
		return *raced, nil
	}
	if err != nil {
		return domain.AffiliateProfile{}, err
	}
	row.ReferralCode = code
	s.logger.InfoContext(ctx, "affiliate registered",
		"module", "application.affiliates",
		"layer", "application",
		"operation", "register_affiliate",
		"outcome", "success",
		"affiliate_id", row.AffiliateID,
		"referral_code", code,
	)
	return row, nil
}

func (s *Service) GetMyAffiliate(ctx context.Context, actor Actor) (domain.AffiliateProfile, error) {
	return s.resolveAffiliate(ctx, actor, "")
}

// RegenerateReferralCode replaces the caller's code. The old code stops
// resolving immediately; orders already tagged with it will not convert.
func (s *Service) RegenerateReferralCode(ctx context.Context, actor Actor) (domain.AffiliateProfile, error) {
	aff, err := s.resolveAffiliate(ctx, actor, "")
	if err != nil {
		return domain.AffiliateProfile{}, err
	}
	now := s.nowFn()
	code, err := s.allocateCode(ctx, func(ctx context.Context, code string) error {
		return s.affiliates.UpdateCode(ctx, aff.AffiliateID, code, now)
	})
	if err != nil {
		return domain.AffiliateProfile{}, err
	}
	aff.ReferralCode = code
	aff.UpdatedAt = now
	s.logger.InfoContext(ctx, "referral code regenerated",
		"module", "application.affiliates",
		"layer", "application",
		"operation", "regenerate_referral_code",
		"outcome", "success",
		"affiliate_id", aff.AffiliateID,
	)
	return aff, nil
}

func (s *Service) SetAffiliateStatus(ctx context.Context, actor Actor, affiliateID string, status domain.AffiliateStatus) (domain.AffiliateProfile, error) {
	if err := requireSubject(actor); err != nil {
		return domain.AffiliateProfile{}, err
	}
	if !isAdmin(actor) {
		return domain.AffiliateProfile{}, domain.ErrForbidden
	}
	affiliateID = strings.TrimSpace(affiliateID)
	if affiliateID == "" {
		return domain.AffiliateProfile{}, domain.ErrInvalidInput
	}
	switch status {
	case domain.AffiliateStatusActive, domain.AffiliateStatusInactive:
	default:
		return domain.AffiliateProfile{}, fmt.Errorf("%w: unknown affiliate status %q", domain.ErrInvalidInput, status)
	}
	now := s.nowFn()
	if err := s.affiliates.UpdateStatus(ctx, affiliateID, status, now); err != nil {
		return domain.AffiliateProfile{}, domain.Persistence(err)
	}
	s.logger.InfoContext(ctx, "affiliate status changed",
		"module", "application.affiliates",
		"layer", "application",
		"operation", "set_affiliate_status",
		"outcome", string(status),
		"affiliate_id", affiliateID,
		"actor_id", actor.SubjectID,
	)
	return s.affiliates.GetByID(ctx, affiliateID)
}

// allocateCode runs the bounded generator. Each candidate is reserved in the
// cache first (when configured) so concurrent allocators rarely race to the
// unique index; the index remains the source of truth.
func (s *Service) allocateCode(ctx context.Context, persist func(ctx context.Context, code string) error) (string, error) {
	code, err := s.codes.Allocate(ctx, func(ctx context.Context, code string) error {
		if s.cache != nil {
			ok, err := s.cache.SetNX(ctx, codeReservationPrefix+code, "1", s.cfg.CodeReservationTTL)
			if err != nil {
				s.logger.WarnContext(ctx, "referral code reservation unavailable",
					"module", "application.affiliates",
					"layer", "application",
					"operation", "allocate_code",
					"outcome", "reservation_skipped",
					"error", err,
				)
			} else if !ok {
				s.metrics.ReferralCodeCollision()
				return domain.ErrDuplicate
			}
		}
		exists, err := s.affiliates.CodeExists(ctx, code)
		if err != nil {
			return domain.Persistence(err)
		}
		if exists {
			s.metrics.ReferralCodeCollision()
			return domain.ErrDuplicate
		}
		err = persist(ctx, code)
		if errors.Is(err, domain.ErrDuplicate) {
			s.metrics.ReferralCodeCollision()
		}
		return err
	})
	var exhausted *domain.CodeSpaceExhaustedError
	switch {
	case err == nil:
	case errors.As(err, &exhausted):
		s.logger.ErrorContext(ctx, "referral code space exhausted",
			"module", "application.affiliates",
			"layer", "application",
			"operation", "allocate_code",
			"outcome", "exhausted",
			"attempts", exhausted.Attempts,
		)
		return "", err
	case errors.Is(err, errAlreadyRegistered), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "", err
	default:
		return "", domain.Persistence(err)
	}
	return code, nil
}
