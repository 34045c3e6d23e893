package memory

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/financial-rails/M92-payment-attribution-service/internal/domain"
	"github.com/viralforge/mesh/services/financial-rails/M92-payment-attribution-service/internal/ports"
)

type OrderRepository struct {
	store *Store
	inTx  bool
}

func (r *OrderRepository) Create(_ context.Context, order domain.PaymentOrder) error {
	defer r.store.lock(r.inTx)()
	if _, ok := r.store.orders[order.OrderID]; ok {
		return domain.ErrDuplicate
	}
	r.store.orders[order.OrderID] = order
	return nil
}

func (r *OrderRepository) GetByID(_ context.Context, orderID string) (domain.PaymentOrder, error) {
	defer r.store.lock(r.inTx)()
	order, ok := r.store.orders[orderID]
	if !ok {
		return domain.PaymentOrder{}, domain.ErrNotFound
	}
	return order, nil
}

func (r *OrderRepository) GetByPaymentID(_ context.Context, paymentID string) (domain.PaymentOrder, error) {
	defer r.store.lock(r.inTx)()
	for _, order := range r.store.orders {
		if paymentID != "" && order.GatewayPaymentID == paymentID {
			return order, nil
		}
	}
	return domain.PaymentOrder{}, domain.ErrNotFound
}

func (r *OrderRepository) TransitionStatus(_ context.Context, orderID string, from, to domain.PaymentStatus, change domain.StatusChange) (bool, error) {
	defer r.store.lock(r.inTx)()
	order, ok := r.store.orders[orderID]
	if !ok || order.Status != from {
		return false, nil
	}
	next, err := order.Apply(to, change)
	if err != nil {
		return false, err
	}
	r.store.orders[orderID] = next
	return true, nil
}

type InvoiceRepository struct {
	store *Store
	inTx  bool
}

func (r *InvoiceRepository) NextSequence(_ context.Context) (int64, error) {
	defer r.store.lock(r.inTx)()
	r.store.invoiceSeq++
	return r.store.invoiceSeq, nil
}

func (r *InvoiceRepository) Create(_ context.Context, invoice domain.Invoice) error {
	defer r.store.lock(r.inTx)()
	if _, ok := r.store.invoices[invoice.OrderID]; ok {
		return domain.ErrDuplicate
	}
	for _, existing := range r.store.invoices {
		if existing.Number == invoice.Number {
			return domain.ErrDuplicate
		}
	}
	r.store.invoices[invoice.OrderID] = invoice
	return nil
}

func (r *InvoiceRepository) GetByOrderID(_ context.Context, orderID string) (domain.Invoice, error) {
	defer r.store.lock(r.inTx)()
	invoice, ok := r.store.invoices[orderID]
	if !ok {
		return domain.Invoice{}, domain.ErrNotFound
	}
	return invoice, nil
}

type AffiliateRepository struct {
	store *Store
	inTx  bool
}

func (r *AffiliateRepository) Create(_ context.Context, row domain.AffiliateProfile) error {
	defer r.store.lock(r.inTx)()
	row.ReferralCode = domain.NormalizeReferralCode(row.ReferralCode)
	if _, ok := r.store.affiliates[row.AffiliateID]; ok {
		return domain.ErrDuplicate
	}
	for _, existing := range r.store.affiliates {
		if existing.UserID == row.UserID || existing.ReferralCode == row.ReferralCode {
			return domain.ErrDuplicate
		}
	}
	r.store.affiliates[row.AffiliateID] = row
	return nil
}

func (r *AffiliateRepository) GetByID(_ context.Context, affiliateID string) (domain.AffiliateProfile, error) {
	defer r.store.lock(r.inTx)()
	row, ok := r.store.affiliates[affiliateID]
	if !ok {
		return domain.AffiliateProfile{}, domain.ErrNotFound
	}
	return row, nil
}

func (r *AffiliateRepository) GetByUserID(_ context.Context, userID string) (domain.AffiliateProfile, error) {
	defer r.store.lock(r.inTx)()
	for _, row := range r.store.affiliates {
		if row.UserID == userID {
			return row, nil
		}
	}
	return domain.AffiliateProfile{}, domain.ErrNotFound
}

func (r *AffiliateRepository) GetByCode(_ context.Context, code string) (domain.AffiliateProfile, error) {
	defer r.store.lock(r.inTx)()
	code = domain.NormalizeReferralCode(code)
	for _, row := range r.store.affiliates {
		if row.ReferralCode == code {
			return row, nil
		}
	}
	return domain.AffiliateProfile{}, domain.ErrNotFound
}

func (r *AffiliateRepository) CodeExists(ctx context.Context, code string) (bool, error) {
	_, err := r.GetByCode(ctx, code)
	if err == domain.ErrNotFound {
		return false, nil
	}
	return err == nil, err
}

func (r *AffiliateRepository) UpdateCode(_ context.Context, affiliateID, code string, at time.Time) error {
	defer r.store.lock(r.inTx)()
	code = domain.NormalizeReferralCode(code)
	row, ok := r.store.affiliates[affiliateID]
	if !ok {
		return domain.ErrNotFound
	}
	for id, existing := range r.store.affiliates {
		if id != affiliateID && existing.ReferralCode == code {
			return domain.ErrDuplicate
		}
	}
	row.ReferralCode = code
	row.UpdatedAt = at
	r.store.affiliates[affiliateID] = row
	return nil
}

func (r *AffiliateRepository) UpdateStatus(_ context.Context, affiliateID string, status domain.AffiliateStatus, at time.Time) error {
	defer r.store.lock(r.inTx)()
	row, ok := r.store.affiliates[affiliateID]
	if !ok {
		return domain.ErrNotFound
	}
	row.Status = status
	row.UpdatedAt = at
	r.store.affiliates[affiliateID] = row
	return nil
}

type ReferralRepository struct {
	store *Store
	inTx  bool
}

func (r *ReferralRepository) Create(_ context.Context, row domain.Referral) error {
	defer r.store.lock(r.inTx)()
	row.ReferredEmail = domain.NormalizeEmail(row.ReferredEmail)
	if _, ok := r.store.referrals[row.ReferralID]; ok {
		return domain.ErrDuplicate
	}
	if row.Status == domain.ReferralStatusPending {
		if _, ok := r.findPending(row.AffiliateID, row.ReferredEmail); ok {
			return domain.ErrDuplicateReferral
		}
	}
	r.store.referrals[row.ReferralID] = row
	return nil
}

func (r *ReferralRepository) GetByID(_ context.Context, referralID string) (domain.Referral, error) {
	defer r.store.lock(r.inTx)()
	row, ok := r.store.referrals[referralID]
	if !ok {
		return domain.Referral{}, domain.ErrNotFound
	}
	return row, nil
}

func (r *ReferralRepository) HasPending(_ context.Context, affiliateID, email string) (bool, error) {
	defer r.store.lock(r.inTx)()
	_, ok := r.findPending(affiliateID, domain.NormalizeEmail(email))
	return ok, nil
}

func (r *ReferralRepository) FindPendingByEmail(_ context.Context, affiliateID, email string) (domain.Referral, error) {
	defer r.store.lock(r.inTx)()
	row, ok := r.findPending(affiliateID, domain.NormalizeEmail(email))
	if !ok {
		return domain.Referral{}, domain.ErrNotFound
	}
	return row, nil
}

func (r *ReferralRepository) findPending(affiliateID, email string) (domain.Referral, bool) {
	for _, row := range r.store.referrals {
		if row.AffiliateID == affiliateID && row.ReferredEmail == email && row.Status == domain.ReferralStatusPending {
			return row, true
		}
	}
	return domain.Referral{}, false
}

// ListPendingByAffiliate returns pending referrals oldest first.
func (r *ReferralRepository) ListPendingByAffiliate(_ context.Context, affiliateID string) ([]domain.Referral, error) {
	defer r.store.lock(r.inTx)()
	out := make([]domain.Referral, 0)
	for _, row := range r.store.referrals {
		if row.AffiliateID == affiliateID && row.Status == domain.ReferralStatusPending {
			out = append(out, row)
		}
	}
	slices.SortFunc(out, func(a, b domain.Referral) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ReferralID, b.ReferralID)
	})
	return out, nil
}

// ListByAffiliate returns every referral newest first.
func (r *ReferralRepository) ListByAffiliate(_ context.Context, affiliateID string) ([]domain.Referral, error) {
	defer r.store.lock(r.inTx)()
	out := make([]domain.Referral, 0)
	for _, row := range r.store.referrals {
		if row.AffiliateID == affiliateID {
			out = append(out, row)
		}
	}
	slices.SortFunc(out, func(a, b domain.Referral) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ReferralID, b.ReferralID)
	})
	return out, nil
}

func (r *ReferralRepository) MarkConverted(_ context.Context, referralID, paymentID string, at time.Time) (bool, error) {
	defer r.store.lock(r.inTx)()
	row, ok := r.store.referrals[referralID]
	if !ok || row.Status != domain.ReferralStatusPending {
		return false, nil
	}
	row.Status = domain.ReferralStatusConverted
	row.ConvertedByPaymentID = paymentID
	row.ConvertedAt = &at
	r.store.referrals[referralID] = row
	return true, nil
}

type CommissionRepository struct {
	store *Store
	inTx  bool
}

func (r *CommissionRepository) Create(_ context.Context, row domain.CommissionEntry) error {
	defer r.store.lock(r.inTx)()
	if _, ok := r.store.commissions[row.CommissionID]; ok {
		return domain.ErrDuplicate
	}
	for _, existing := range r.store.commissions {
		if existing.ReferralID == row.ReferralID {
			return domain.ErrDuplicate
		}
	}
	r.store.commissions[row.CommissionID] = row
	return nil
}

func (r *CommissionRepository) GetByID(_ context.Context, commissionID string) (domain.CommissionEntry, error) {
	defer r.store.lock(r.inTx)()
	row, ok := r.store.commissions[commissionID]
	if !ok {
		return domain.CommissionEntry{}, domain.ErrNotFound
	}
	return row, nil
}

func (r *CommissionRepository) ListByAffiliate(_ context.Context, affiliateID string) ([]domain.CommissionEntry, error) {
	defer r.store.lock(r.inTx)()
	out := make([]domain.CommissionEntry, 0)
	for _, row := range r.store.commissions {
		if row.AffiliateID == affiliateID {
			out = append(out, row)
		}
	}
	slices.SortFunc(out, func(a, b domain.CommissionEntry) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.CommissionID, b.CommissionID)
	})
	return out, nil
}

func (r *CommissionRepository) UpdateStatus(_ context.Context, commissionID string, from, to domain.CommissionStatus, at time.Time) (bool, error) {
	defer r.store.lock(r.inTx)()
	row, ok := r.store.commissions[commissionID]
	if !ok {
		return false, domain.ErrNotFound
	}
	if row.Status != from {
		return false, nil
	}
	row.Status = to
	row.UpdatedAt = at
	r.store.commissions[commissionID] = row
	return true, nil
}

type OutboxRepository struct {
	store *Store
	inTx  bool
}

func (r *OutboxRepository) Enqueue(_ context.Context, event ports.OutboxEvent) error {
	defer r.store.lock(r.inTx)()
	r.store.outbox = append(r.store.outbox, ports.OutboxRecord{
		OutboxID:     event.EventID,
		EventType:    event.EventType,
		PartitionKey: event.PartitionKey,
		Payload:      slices.Clone(event.Payload),
		CreatedAt:    event.OccurredAt,
	})
	return nil
}

func (r *OutboxRepository) FetchUnpublished(_ context.Context, limit int) ([]ports.OutboxRecord, error) {
	defer r.store.lock(r.inTx)()
	if limit <= 0 {
		limit = 100
	}
	out := make([]ports.OutboxRecord, 0, limit)
	for _, rec := range r.store.outbox {
		if rec.PublishedAt != nil {
			continue
		}
		out = append(out, rec)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *OutboxRepository) MarkPublished(_ context.Context, outboxID uuid.UUID, at time.Time) error {
	defer r.store.lock(r.inTx)()
	for i := range r.store.outbox {
		if r.store.outbox[i].OutboxID == outboxID {
			r.store.outbox[i].PublishedAt = &at
			return nil
		}
	}
	return domain.ErrNotFound
}

func (r *OutboxRepository) MarkFailed(_ context.Context, outboxID uuid.UUID, errMsg string, at time.Time) error {
	defer r.store.lock(r.inTx)()
	for i := range r.store.outbox {
		if r.store.outbox[i].OutboxID == outboxID {
			r.store.outbox[i].RetryCount++
			r.store.outbox[i].LastError = errMsg
			r.store.outbox[i].LastErrorAt = &at
			return nil
		}
	}
	return domain.ErrNotFound
}

type WebhookDeliveryRepository struct {
	store *Store
}

func (r *WebhookDeliveryRepository) Append(_ context.Context, row ports.WebhookDelivery) error {
	defer r.store.lock(false)()
	row.Payload = slices.Clone(row.Payload)
	r.store.deliveries = append(r.store.deliveries, row)
	return nil
}

type IdempotencyRepository struct {
	store *Store
}

func (r *IdempotencyRepository) Get(_ context.Context, key string, now time.Time) (*ports.IdempotencyRecord, error) {
	defer r.store.lock(false)()
	rec, ok := r.store.idempotency[key]
	if !ok {
		return nil, nil
	}
	if now.After(rec.ExpiresAt) {
		delete(r.store.idempotency, key)
		return nil, nil
	}
	out := rec
	out.ResponseBody = slices.Clone(rec.ResponseBody)
	return &out, nil
}

func (r *IdempotencyRepository) Reserve(_ context.Context, key, requestHash string, expiresAt time.Time) error {
	defer r.store.lock(false)()
	// expired records are evicted by Get, which callers run first
	if _, ok := r.store.idempotency[key]; ok {
		return domain.ErrDuplicate
	}
	r.store.idempotency[key] = ports.IdempotencyRecord{Key: key, RequestHash: requestHash, ExpiresAt: expiresAt}
	return nil
}

func (r *IdempotencyRepository) Complete(_ context.Context, key string, responseCode int, responseBody []byte, _ time.Time) error {
	defer r.store.lock(false)()
	rec, ok := r.store.idempotency[key]
	if !ok {
		return domain.ErrNotFound
	}
	rec.ResponseCode = responseCode
	rec.ResponseBody = slices.Clone(responseBody)
	r.store.idempotency[key] = rec
	return nil
}

func (r *IdempotencyRepository) Release(_ context.Context, key string) error {
	defer r.store.lock(false)()
	if rec, ok := r.store.idempotency[key]; ok && len(rec.ResponseBody) == 0 {
		delete(r.store.idempotency, key)
	}
	return nil
}

var (
	_ ports.OrderRepository           = (*OrderRepository)(nil)
	_ ports.InvoiceRepository         = (*InvoiceRepository)(nil)
	_ ports.AffiliateRepository       = (*AffiliateRepository)(nil)
	_ ports.ReferralRepository        = (*ReferralRepository)(nil)
	_ ports.CommissionRepository      = (*CommissionRepository)(nil)
	_ ports.OutboxRepository          = (*OutboxRepository)(nil)
	_ ports.WebhookDeliveryRepository = (*WebhookDeliveryRepository)(nil)
	_ ports.IdempotencyRepository     = (*IdempotencyRepository)(nil)
)
