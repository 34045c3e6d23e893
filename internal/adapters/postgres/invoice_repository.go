package postgres

import (
	"context"
	"errors"

	"github.com/viralforge/mesh/services/financial-rails/M92-payment-attribution-service/internal/domain"
	"gorm.io/gorm"
)

type invoiceRepository struct {
	db *gorm.DB
}

// NextSequence draws from a database sequence. Numbers consumed by a rolled
// back transaction are not reused.
func (r *invoiceRepository) NextSequence(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Raw("SELECT nextval('invoice_number_seq')").Scan(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

func (r *invoiceRepository) Create(ctx context.Context, invoice domain.Invoice) error {
	row, err := toInvoiceModel(invoice)
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

func (r *invoiceRepository) GetByOrderID(ctx context.Context, orderID string) (domain.Invoice, error) {
	var row invoiceModel
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Invoice{}, domain.ErrNotFound
		}
		return domain.Invoice{}, err
	}
	return toDomainInvoice(row)
}
