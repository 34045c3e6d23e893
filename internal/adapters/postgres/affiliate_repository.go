package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/viralforge/mesh/services/financial-rails/M92-payment-attribution-service/internal/domain"
	"gorm.io/gorm"
)

type affiliateRepository struct {
	db *gorm.DB
}

func (r *affiliateRepository) Create(ctx context.Context, row domain.AffiliateProfile) error {
	m := toAffiliateModel(row)
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicate
		}
		return err
	}
	return nil
}

func (r *affiliateRepository) GetByID(ctx context.Context, affiliateID string) (domain.AffiliateProfile, error) {
	return r.take(ctx, "affiliate_id = ?", affiliateID)
}

func (r *affiliateRepository) GetByUserID(ctx context.Context, userID string) (domain.AffiliateProfile, error) {
	return r.take(ctx, "user_id = ?", userID)
}

func (r *affiliateRepository) GetByCode(ctx context.Context, code string) (domain.AffiliateProfile, error) {
	return r.take(ctx, "referral_code = ?", domain.NormalizeReferralCode(code))
}

func (r *affiliateRepository) take(ctx context.Context, query, arg string) (domain.AffiliateProfile, error) {
	var row affiliateModel
	if err := r.db.WithContext(ctx).Where(query, arg).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.AffiliateProfile{}, domain.ErrNotFound
		}
		return domain.AffiliateProfile{}, err
	}
	return toDomainAffiliate(row), nil
}

func (r *affiliateRepository) CodeExists(ctx context.Context, code string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&affiliateModel{}).
		Where("referral_code = ?", domain.NormalizeReferralCode(code)).
		Count(&count).Error
	return count > 0, err
}

func (r *affiliateRepository) UpdateCode(ctx context.Context, affiliateID, code string, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&affiliateModel{}).
		Where("affiliate_id = ?", affiliateID).
		Updates(map[string]any{"referral_code": domain.NormalizeReferralCode(code), "updated_at": at})
	if res.Error != nil {
		if isUniqueViolation(res.Error) {
			return domain.ErrDuplicate
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *affiliateRepository) UpdateStatus(ctx context.Context, affiliateID string, status domain.AffiliateStatus, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&affiliateModel{}).
		Where("affiliate_id = ?", affiliateID).
		Updates(map[string]any{"status": string(status), "updated_at": at})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
