package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/financial-rails/M92-payment-attribution-service/internal/ports"
	"gorm.io/gorm"
)

type webhookDeliveryRepository struct {
	db *gorm.DB
}

func (r *webhookDeliveryRepository) Append(ctx context.Context, row ports.WebhookDelivery) error {
	id := row.DeliveryID
	if id == "" {
		id = uuid.NewString()
	}
	rec := webhookDeliveryModel{
		DeliveryID: id,
		EventID:    row.EventID,
		EventType:  row.EventType,
		OrderID:    row.OrderID,
		PaymentID:  row.PaymentID,
		Outcome:    row.Outcome,
		Error:      row.Error,
		Payload:    jsonPayload(row.Payload),
		ReceivedAt: row.ReceivedAt,
	}
	return r.db.WithContext(ctx).Create(&rec).Error
}
