package postgres

import (
	"context"

	"github.com/viralforge/mesh/services/financial-rails/M92-payment-attribution-service/internal/ports"
	"gorm.io/gorm"
)

type Repositories struct {
	Orders      ports.OrderRepository
	Invoices    ports.InvoiceRepository
	Affiliates  ports.AffiliateRepository
	Referrals   ports.ReferralRepository
	Commissions ports.CommissionRepository
	Outbox      ports.OutboxRepository
	Deliveries  ports.WebhookDeliveryRepository
	Idempotency ports.IdempotencyRepository
	UnitOfWork  ports.UnitOfWork
}

func NewRepositories(db *gorm.DB) Repositories {
	return Repositories{
		Orders:      &orderRepository{db: db},
		Invoices:    &invoiceRepository{db: db},
		Affiliates:  &affiliateRepository{db: db},
		Referrals:   &referralRepository{db: db},
		Commissions: &commissionRepository{db: db},
		Outbox:      &outboxRepository{db: db},
		Deliveries:  &webhookDeliveryRepository{db: db},
		Idempotency: &idempotencyRepository{db: db},
		UnitOfWork:  &unitOfWork{db: db},
	}
}

type unitOfWork struct {
	db *gorm.DB
}

func (u *unitOfWork) WithinTx(ctx context.Context, fn func(ctx context.Context, tx ports.TxRepositories) error) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, ports.TxRepositories{
			Orders:      &orderRepository{db: tx},
			Invoices:    &invoiceRepository{db: tx},
			Affiliates:  &affiliateRepository{db: tx},
			Referrals:   &referralRepository{db: tx},
			Commissions: &commissionRepository{db: tx},
			Outbox:      &outboxRepository{db: tx},
		})
	})
}

var (
	_ ports.OrderRepository           = (*orderRepository)(nil)
	_ ports.InvoiceRepository         = (*invoiceRepository)(nil)
	_ ports.AffiliateRepository       = (*affiliateRepository)(nil)
	_ ports.ReferralRepository        = (*referralRepository)(nil)
	_ ports.CommissionRepository      = (*commissionRepository)(nil)
	_ ports.OutboxRepository          = (*outboxRepository)(nil)
	_ ports.WebhookDeliveryRepository = (*webhookDeliveryRepository)(nil)
	_ ports.IdempotencyRepository     = (*idempotencyRepository)(nil)
	_ ports.UnitOfWork                = (*unitOfWork)(nil)
)
