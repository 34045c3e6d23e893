package postgres

import (
	"context"
	"errors"

	"github.com/viralforge/mesh/services/financial-rails/M92-payment-attribution-service/internal/domain"
	"gorm.io/gorm"
)

type orderRepository struct {
	db *gorm.DB
}

func (r *orderRepository) Create(ctx context.Context, order domain.PaymentOrder) error {
	row, err := toOrderModel(order)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicate
		}
		return err
	}
	return nil
}

func (r *orderRepository) GetByID(ctx context.Context, orderID string) (domain.PaymentOrder, error) {
	return r.take(ctx, "order_id = ?", orderID)
}

func (r *orderRepository) GetByPaymentID(ctx context.Context, paymentID string) (domain.PaymentOrder, error) {
	return r.take(ctx, "gateway_payment_id = ?", paymentID)
}

func (r *orderRepository) take(ctx context.Context, query string, arg string) (domain.PaymentOrder, error) {
	var row paymentOrderModel
	if err := r.db.WithContext(ctx).Where(query, arg).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.PaymentOrder{}, domain.ErrNotFound
		}
		return domain.PaymentOrder{}, err
	}
	return toDomainOrder(row), nil
}

func (r *orderRepository) TransitionStatus(ctx context.Context, orderID string, from, to domain.PaymentStatus, change domain.StatusChange) (bool, error) {
	if !domain.CanTransition(from, to) {
		return false, domain.ErrInvalidTransition
	}
	updates := map[string]any{
		"status":     string(to),
		"updated_at": change.At,
	}
	if change.PaymentID != "" {
		updates["gateway_payment_id"] = change.PaymentID
	}
	switch to {
	case domain.PaymentStatusCaptured:
		updates["captured_at"] = change.At
	case domain.PaymentStatusFailed:
		updates["failed_at"] = change.At
		updates["failure_reason"] = change.FailureReason
	}
	res := r.db.WithContext(ctx).Model(&paymentOrderModel{}).
		Where("order_id = ? AND status = ?", orderID, string(from)).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
