package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/viralforge/mesh/services/financial-rails/M92-payment-attribution-service/internal/domain"
	"gorm.io/gorm"
)

type referralRepository struct {
	db *gorm.DB
}

// Create relies on uq_referrals_pending_email to reject a second pending
// referral for the same affiliate and email.
func (r *referralRepository) Create(ctx context.Context, row domain.Referral) error {
	m := toReferralModel(row)
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateReferral
		}
		return err
	}
	return nil
}

func (r *referralRepository) GetByID(ctx context.Context, referralID string) (domain.Referral, error) {
	var row referralModel
	if err := r.db.WithContext(ctx).Where("referral_id = ?", referralID).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Referral{}, domain.ErrNotFound
		}
		return domain.Referral{}, err
	}
	return toDomainReferral(row), nil
}

func (r *referralRepository) HasPending(ctx context.Context, affiliateID, email string) (bool, error) {
	var count int64
	err := r.pending(ctx, affiliateID).
		Where("referred_email = ?", domain.NormalizeEmail(email)).
		Count(&count).Error
	return count > 0, err
}

func (r *referralRepository) FindPendingByEmail(ctx context.Context, affiliateID, email string) (domain.Referral, error) {
	var row referralModel
	err := r.pending(ctx, affiliateID).
		Where("referred_email = ?", domain.NormalizeEmail(email)).
		Order("created_at asc").
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Referral{}, domain.ErrNotFound
		}
		return domain.Referral{}, err
	}
	return toDomainReferral(row), nil
}

func (r *referralRepository) ListPendingByAffiliate(ctx context.Context, affiliateID string) ([]domain.Referral, error) {
	var rows []referralModel
	if err := r.pending(ctx, affiliateID).Order("created_at asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	return toDomainReferrals(rows), nil
}

func (r *referralRepository) ListByAffiliate(ctx context.Context, affiliateID string) ([]domain.Referral, error) {
	var rows []referralModel
	err := r.db.WithContext(ctx).
		Where("affiliate_id = ?", affiliateID).
		Order("created_at desc").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toDomainReferrals(rows), nil
}

// MarkConverted only flips a referral that is still pending, so two
// concurrent captures cannot both claim it.
func (r *referralRepository) MarkConverted(ctx context.Context, referralID, paymentID string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&referralModel{}).
		Where("referral_id = ? AND status = ?", referralID, string(domain.ReferralStatusPending)).
		Updates(map[string]any{
			"status":                  string(domain.ReferralStatusConverted),
			"converted_by_payment_id": paymentID,
			"converted_at":            at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *referralRepository) pending(ctx context.Context, affiliateID string) *gorm.DB {
	return r.db.WithContext(ctx).Model(&referralModel{}).
		Where("affiliate_id = ? AND status = ?", affiliateID, string(domain.ReferralStatusPending))
}

func toDomainReferrals(rows []referralModel) []domain.Referral {
	out := make([]domain.Referral, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDomainReferral(row))
	}
	return out
}
