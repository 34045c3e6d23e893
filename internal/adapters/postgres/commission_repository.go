package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/viralforge/mesh/services/financial-rails/M92-payment-attribution-service/internal/domain"
	"gorm.io/gorm"
)

type commissionRepository struct {
	db *gorm.DB
}

func (r *commissionRepository) Create(ctx context.Context, row domain.CommissionEntry) error {
	m := toCommissionModel(row)
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicate
		}
		return err
	}
	return nil
}

func (r *commissionRepository) GetByID(ctx context.Context, commissionID string) (domain.CommissionEntry, error) {
	var row commissionModel
	if err := r.db.WithContext(ctx).Where("commission_id = ?", commissionID).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.CommissionEntry{}, domain.ErrNotFound
		}
		return domain.CommissionEntry{}, err
	}
	return toDomainCommission(row), nil
}

func (r *commissionRepository) ListByAffiliate(ctx context.Context, affiliateID string) ([]domain.CommissionEntry, error) {
	var rows []commissionModel
	err := r.db.WithContext(ctx).
		Where("affiliate_id = ?", affiliateID).
		Order("created_at desc").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]domain.CommissionEntry, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDomainCommission(row))
	}
	return out, nil
}

func (r *commissionRepository) UpdateStatus(ctx context.Context, commissionID string, from, to domain.CommissionStatus, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&commissionModel{}).
		Where("commission_id = ? AND status = ?", commissionID, string(from)).
		Updates(map[string]any{"status": string(to), "updated_at": at})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
