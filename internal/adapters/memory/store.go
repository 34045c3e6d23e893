package memory

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/viralforge/mesh/services/financial-rails/M92-payment-attribution-service/internal/domain"
	"github.com/viralforge/mesh/services/financial-rails/M92-payment-attribution-service/internal/ports"
)

// Store is an in-process implementation of every repository port. A
// transaction holds the store lock for its whole duration and restores a
// snapshot when the callback fails, so it behaves like a serializable
// database for a single process.
type Store struct {
	mu sync.Mutex

	orders      map[string]domain.PaymentOrder
	invoices    map[string]domain.Invoice
	invoiceSeq  int64
	affiliates  map[string]domain.AffiliateProfile
	referrals   map[string]domain.Referral
	commissions map[string]domain.CommissionEntry
	outbox      []ports.OutboxRecord
	deliveries  []ports.WebhookDelivery
	idempotency map[string]ports.IdempotencyRecord
}

type Repositories struct {
	Orders      *OrderRepository
	Invoices    *InvoiceRepository
	Affiliates  *AffiliateRepository
	Referrals   *ReferralRepository
	Commissions *CommissionRepository
	Outbox      *OutboxRepository
	Deliveries  *WebhookDeliveryRepository
	Idempotency *IdempotencyRepository
	UnitOfWork  *Store
}

func NewStore() *Store {
	return &Store{
		orders:      make(map[string]domain.PaymentOrder),
		invoices:    make(map[string]domain.Invoice),
		affiliates:  make(map[string]domain.AffiliateProfile),
		referrals:   make(map[string]domain.Referral),
		commissions: make(map[string]domain.CommissionEntry),
		idempotency: make(map[string]ports.IdempotencyRecord),
	}
}

func NewRepositories() *Repositories {
	return NewStore().Repositories()
}

func (s *Store) Repositories() *Repositories {
	return &Repositories{
		Orders:      &OrderRepository{store: s},
		Invoices:    &InvoiceRepository{store: s},
		Affiliates:  &AffiliateRepository{store: s},
		Referrals:   &ReferralRepository{store: s},
		Commissions: &CommissionRepository{store: s},
		Outbox:      &OutboxRepository{store: s},
		Deliveries:  &WebhookDeliveryRepository{store: s},
		Idempotency: &IdempotencyRepository{store: s},
		UnitOfWork:  s,
	}
}

type snapshot struct {
	orders      map[string]domain.PaymentOrder
	invoices    map[string]domain.Invoice
	affiliates  map[string]domain.AffiliateProfile
	referrals   map[string]domain.Referral
	commissions map[string]domain.CommissionEntry
	outbox      []ports.OutboxRecord
}

func (s *Store) snapshot() snapshot {
	return snapshot{
		orders:      maps.Clone(s.orders),
		invoices:    maps.Clone(s.invoices),
		affiliates:  maps.Clone(s.affiliates),
		referrals:   maps.Clone(s.referrals),
		commissions: maps.Clone(s.commissions),
		outbox:      slices.Clone(s.outbox),
	}
}

func (s *Store) restore(snap snapshot) {
	s.orders = snap.orders
	s.invoices = snap.invoices
	s.affiliates = snap.affiliates
	s.referrals = snap.referrals
	s.commissions = snap.commissions
	s.outbox = snap.outbox
}

// WithinTx runs fn against repositories bound to the held lock. The invoice
// sequence is not rolled back, matching a database sequence.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx ports.TxRepositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.snapshot()
	err := fn(ctx, ports.TxRepositories{
		Orders:      &OrderRepository{store: s, inTx: true},
		Invoices:    &InvoiceRepository{store: s, inTx: true},
		Affiliates:  &AffiliateRepository{store: s, inTx: true},
		Referrals:   &ReferralRepository{store: s, inTx: true},
		Commissions: &CommissionRepository{store: s, inTx: true},
		Outbox:      &OutboxRepository{store: s, inTx: true},
	})
	if err != nil {
		s.restore(snap)
	}
	return err
}

func (s *Store) lock(inTx bool) func() {
	if inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// Counts reports row totals per table.
type Counts struct {
	Orders      int
	Invoices    int
	Affiliates  int
	Referrals   int
	Commissions int
	Outbox      int
	Deliveries  int
}

func (s *Store) Counts() Counts {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Counts{
		Orders:      len(s.orders),
		Invoices:    len(s.invoices),
		Affiliates:  len(s.affiliates),
		Referrals:   len(s.referrals),
		Commissions: len(s.commissions),
		Outbox:      len(s.outbox),
		Deliveries:  len(s.deliveries),
	}
}

func (s *Store) OutboxRecords() []ports.OutboxRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.outbox)
}

func (s *Store) Deliveries() []ports.WebhookDelivery {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.deliveries)
}

var _ ports.UnitOfWork = (*Store)(nil)
