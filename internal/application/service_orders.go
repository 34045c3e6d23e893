package application

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/financial-rails/M92-payment-attribution-service/internal/domain"
	"github.com/viralforge/mesh/services/financial-rails/M92-payment-attribution-service/internal/ports"
)

// CreateOrder registers an order with the gateway and persists it as created.
// The referral code is stored as given; it is only resolved at capture time.
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (OrderSummary, error) {
	if in.AmountMinor <= 0 {
		return OrderSummary{}, fmt.Errorf("%w: amount must be a positive integer in minor units", domain.ErrInvalidInput)
	}
	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = s.cfg.DefaultCurrency
	}
	if err := domain.ValidateCurrency(currency); err != nil {
		return OrderSummary{}, err
	}
	customer := domain.NormalizeCustomer(in.Customer)
	if err := domain.ValidateCustomer(customer); err != nil {
		return OrderSummary{}, err
	}
	tag := domain.ReferralCodeTag(in.ReferralCode)
	if s.gateway == nil {
		return OrderSummary{}, domain.ErrGatewayNotConfigured
	}

	requestHash := hashJSON(map[string]any{"op": "create_order", "amount": in.AmountMinor, "currency": currency, "customer": customer, "referral": tag})
	if raw, ok, err := s.getIdempotent(ctx, in.IdempotencyKey, requestHash); err != nil {
		return OrderSummary{}, err
	} else if ok {
		var out OrderSummary
		if json.Unmarshal(raw, &out) == nil {
			return out, nil
		}
	}
	if err := s.reserveIdempotency(ctx, in.IdempotencyKey, requestHash); err != nil {
		return OrderSummary{}, err
	}

	notes := map[string]string{
		"customer_name":  customer.Name,
		"customer_email": customer.Email,
	}
	if customer.Company != "" {
		notes["company"] = customer.Company
	}
	if code, ok := tag.Code(); ok {
		notes["referral_code"] = code
	}
	gwNotes := make(map[string]any, len(notes))
	for k, v := range notes {
		gwNotes[k] = v
	}
	gwOrder, err := s.gateway.CreateOrder(ctx, ports.CreateGatewayOrderInput{
		AmountMinor: in.AmountMinor,
		Currency:    currency,
		Receipt:     "rcpt_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:20],
		Notes:       gwNotes,
	})
	if err != nil {
		s.releaseIdempotency(ctx, in.IdempotencyKey)
		s.metrics.GatewayRequest("failure")
		s.logger.ErrorContext(ctx, "gateway order creation failed",
			"module", "application.orders",
			"layer", "application",
			"operation", "create_order",
			"outcome", "failure",
			"error", err,
		)
		return OrderSummary{}, err
	}
	s.metrics.GatewayRequest("success")
	if gwOrder.AmountMinor != 0 && gwOrder.AmountMinor != in.AmountMinor {
		s.logger.WarnContext(ctx, "gateway echoed a different amount",
			"module", "application.orders",
			"layer", "application",
			"operation", "create_order",
			"outcome", "amount_mismatch",
			"order_id", gwOrder.ID,
			"requested", in.AmountMinor,
			"gateway", gwOrder.AmountMinor,
		)
	}
	if gwOrder.Currency != "" {
		currency = strings.ToUpper(gwOrder.Currency)
	}

	now := s.nowFn()
	order := domain.PaymentOrder{
		OrderID:     gwOrder.ID,
		AmountMinor: in.AmountMinor,
		Currency:    currency,
		Status:      domain.PaymentStatusCreated,
		Customer:    customer,
		Referral:    tag,
		Notes:       notes,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.orders.Create(ctx, order); err != nil {
		s.releaseIdempotency(ctx, in.IdempotencyKey)
		// The gateway order exists but is not tracked; log its id for reconciliation.
		s.logger.ErrorContext(ctx, "persist order failed after gateway creation",
			"module", "application.orders",
			"layer", "application",
			"operation", "create_order",
			"outcome", "failure",
			"order_id", gwOrder.ID,
			"error", err,
		)
		return OrderSummary{}, domain.Persistence(err)
	}
	summary := OrderSummary{ID: order.OrderID, Amount: order.AmountMinor, Currency: order.Currency, Key: s.gateway.PublicKey()}
	if err := s.completeIdempotencyJSON(ctx, in.IdempotencyKey, 200, summary); err != nil {
		// The key stays reserved; retries get a conflict until it expires.
		s.logger.WarnContext(ctx, "complete idempotency key failed",
			"module", "application.idempotency",
			"layer", "application",
			"operation", "create_order",
			"outcome", "failure",
			"order_id", order.OrderID,
			"idempotency_key", in.IdempotencyKey,
			"error", err,
		)
	}
	s.logger.InfoContext(ctx, "order created",
		"module", "application.orders",
		"layer", "application",
		"operation", "create_order",
		"outcome", "success",
		"order_id", order.OrderID,
		"has_referral", notes["referral_code"] != "",
	)
	return summary, nil
}

func (s *Service) GetOrder(ctx context.Context, orderID string) (domain.PaymentOrder, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.PaymentOrder{}, domain.ErrInvalidInput
	}
	return s.orders.GetByID(ctx, orderID)
}
