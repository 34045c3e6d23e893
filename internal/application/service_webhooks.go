package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cast"
	"github.com/viralforge/mesh/services/financial-rails/M92-payment-attribution-service/internal/contracts"
	"github.com/viralforge/mesh/services/financial-rails/M92-payment-attribution-service/internal/domain"
	"github.com/viralforge/mesh/services/financial-rails/M92-payment-attribution-service/internal/ports"
)

type webhookBody struct {
	Event   string `json:"event"`
	Payload struct {
		Payment *struct {
			Entity webhookEntity `json:"entity"`
		} `json:"payment"`
		Order *struct {
			Entity webhookEntity `json:"entity"`
		} `json:"order"`
	} `json:"payload"`
}

type webhookEntity struct {
	ID               string `json:"id"`
	OrderID          string `json:"order_id"`
	Amount           any    `json:"amount"`
	Currency         string `json:"currency"`
	Status           string `json:"status"`
	ErrorDescription any    `json:"error_description"`
}

// ParseWebhookEvent decodes a verified gateway delivery. Unknown event types
// decode without further checks so they can be acknowledged and skipped.
func ParseWebhookEvent(raw []byte) (domain.PaymentEvent, error) {
	var body webhookBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return domain.PaymentEvent{}, fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err)
	}
	eventType := strings.TrimSpace(body.Event)
	if eventType == "" {
		return domain.PaymentEvent{}, fmt.Errorf("%w: missing event type", domain.ErrMalformedPayload)
	}
	ev := domain.PaymentEvent{Type: domain.EventType(eventType), Raw: raw}
	if _, known := domain.TargetStatus(ev.Type); !known {
		return ev, nil
	}

	var payment, order *webhookEntity
	if body.Payload.Payment != nil {
		payment = &body.Payload.Payment.Entity
	}
	if body.Payload.Order != nil {
		order = &body.Payload.Order.Entity
	}
	switch ev.Type {
	case domain.EventOrderPaid:
		if order == nil || strings.TrimSpace(order.ID) == "" {
			return domain.PaymentEvent{}, fmt.Errorf("%w: order.paid without order entity", domain.ErrMalformedPayload)
		}
		ev.OrderID = strings.TrimSpace(order.ID)
		if payment != nil {
			ev.PaymentID = strings.TrimSpace(payment.ID)
		}
		if err := fillAmount(&ev, order); err != nil {
			return domain.PaymentEvent{}, err
		}
	default:
		if payment == nil || strings.TrimSpace(payment.OrderID) == "" {
			return domain.PaymentEvent{}, fmt.Errorf("%w: %s without payment order id", domain.ErrMalformedPayload, ev.Type)
		}
		ev.OrderID = strings.TrimSpace(payment.OrderID)
		ev.PaymentID = strings.TrimSpace(payment.ID)
		ev.FailureReason = cast.ToString(payment.ErrorDescription)
		if err := fillAmount(&ev, payment); err != nil {
			return domain.PaymentEvent{}, err
		}
	}
	return ev, nil
}

func fillAmount(ev *domain.PaymentEvent, entity *webhookEntity) error {
	ev.Currency = strings.ToUpper(strings.TrimSpace(entity.Currency))
	if entity.Amount == nil {
		return nil
	}
	amount, err := cast.ToInt64E(entity.Amount)
	if err != nil {
		return fmt.Errorf("%w: amount: %v", domain.ErrMalformedPayload, err)
	}
	ev.AmountMinor = amount
	return nil
}

// HandleWebhook verifies and applies one gateway delivery. A nil error means
// the delivery should be acknowledged, including duplicates and orphans.
func (s *Service) HandleWebhook(ctx context.Context, in WebhookInput) (WebhookResult, error) {
	err := domain.ErrMissingSignature
	if s.verifier != nil {
		err = s.verifier.Verify(in.RawBody, in.Signature)
	}
	if err != nil {
		s.metrics.WebhookProcessed("unverified", "rejected_signature")
		s.logger.WarnContext(ctx, "webhook signature rejected",
			"module", "application.webhooks",
			"layer", "application",
			"operation", "handle_webhook",
			"outcome", "rejected_signature",
			"event_id", in.EventID,
			"error", err,
		)
		s.notify(ctx, ports.Notification{
			Kind:    ports.NotificationSecurityAlert,
			Subject: "Payment webhook rejected",
			Fields:  map[string]string{"reason": err.Error(), "event_id": in.EventID},
		})
		return WebhookResult{}, err
	}

	ev, err := ParseWebhookEvent(in.RawBody)
	if err != nil {
		s.metrics.WebhookProcessed("unparsed", "malformed")
		s.recordDelivery(ctx, in, domain.PaymentEvent{Raw: in.RawBody}, "malformed", err)
		return WebhookResult{}, err
	}
	ev.DeliveryID = in.EventID

	res, err := s.applyEvent(ctx, ev)
	outcome := string(res.Outcome)
	if err != nil {
		outcome = "error"
	}
	s.metrics.WebhookProcessed(string(ev.Type), outcome)
	s.recordDelivery(ctx, in, ev, outcome, err)
	return res, err
}

func (s *Service) applyEvent(ctx context.Context, ev domain.PaymentEvent) (WebhookResult, error) {
	res := WebhookResult{EventType: string(ev.Type), OrderID: ev.OrderID}
	target, known := domain.TargetStatus(ev.Type)
	if !known {
		s.logger.InfoContext(ctx, "ignoring unsupported webhook event",
			"module", "application.webhooks",
			"layer", "application",
			"operation", "apply_event",
			"outcome", string(domain.OutcomeIgnoredUnknownEvent),
			"event_type", string(ev.Type),
		)
		res.Outcome = domain.OutcomeIgnoredUnknownEvent
		return res, nil
	}
	if target == domain.PaymentStatusCaptured {
		return s.applyCapture(ctx, ev, res)
	}
	return s.applyFailure(ctx, ev, res)
}

func (s *Service) applyCapture(ctx context.Context, ev domain.PaymentEvent, res WebhookResult) (WebhookResult, error) {
	now := s.nowFn()
	var (
		orderMissing bool
		order        domain.PaymentOrder
		invoice      domain.Invoice
		conv         *conversion
	)
	err := s.uow.WithinTx(ctx, func(ctx context.Context, tx ports.TxRepositories) error {
		applied, err := tx.Orders.TransitionStatus(ctx, ev.OrderID, domain.PaymentStatusCreated, domain.PaymentStatusCaptured, domain.StatusChange{PaymentID: ev.PaymentID, At: now})
		if err != nil {
			return err
		}
		current, err := tx.Orders.GetByID(ctx, ev.OrderID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				orderMissing = true
			}
			return err
		}
		if !applied {
			res.Outcome, err = domain.Resolve(current.Status, domain.PaymentStatusCaptured)
			return err
		}
		res.Outcome = domain.OutcomeApplied
		order = current
		if ev.AmountMinor != 0 && ev.AmountMinor != order.AmountMinor {
			s.logger.WarnContext(ctx, "captured amount differs from order amount",
				"module", "application.webhooks",
				"layer", "application",
				"operation", "apply_capture",
				"outcome", "amount_mismatch",
				"order_id", order.OrderID,
				"order_amount", order.AmountMinor,
				"event_amount", ev.AmountMinor,
			)
		}

		draft, err := domain.GenerateInvoice(ctx, order, tx.Invoices, s.invoicePolicy(), now)
		if err != nil {
			return err
		}
		invoice, err = draft.MarkPaid(now)
		if err != nil {
			return err
		}
		if err := tx.Invoices.Create(ctx, invoice); err != nil {
			return fmt.Errorf("create invoice: %w", err)
		}

		if code, ok := order.Referral.Code(); ok {
			conv, err = s.convertWithin(ctx, tx, code, order, order.GatewayPaymentID, now)
			if err != nil {
				return err
			}
		}

		if err := s.enqueueEvent(ctx, tx.Outbox, contracts.EventPaymentCaptured, "data.order_id", order.OrderID, contracts.PaymentCapturedPayload{
			OrderID: order.OrderID, PaymentID: order.GatewayPaymentID, Amount: order.AmountMinor, Currency: order.Currency, CapturedAt: formatTime(now),
		}, now); err != nil {
			return err
		}
		return s.enqueueEvent(ctx, tx.Outbox, contracts.EventInvoiceIssued, "data.order_id", order.OrderID, contracts.InvoiceIssuedPayload{
			InvoiceNumber: invoice.Number, OrderID: order.OrderID, Subtotal: invoice.SubtotalMinor, Tax: invoice.TaxMinor, Total: invoice.TotalMinor, Currency: invoice.Currency, IssuedAt: formatTime(now),
		}, now)
	})
	if err != nil {
		return s.resolveTxError(ctx, res, orderMissing, err)
	}
	s.logTransition(ctx, "apply_capture", res)
	if res.Outcome != domain.OutcomeApplied {
		return res, nil
	}

	res.InvoiceNumber = invoice.Number
	s.notify(ctx, ports.Notification{
		Kind:      ports.NotificationPaymentCaptured,
		Recipient: order.Customer.Email,
		Subject:   fmt.Sprintf("Payment received for order %s", order.OrderID),
		Fields: map[string]string{
			"order_id":       order.OrderID,
			"payment_id":     order.GatewayPaymentID,
			"invoice_number": invoice.Number,
			"total":          fmt.Sprintf("%d", invoice.TotalMinor),
			"currency":       invoice.Currency,
		},
	})
	if conv != nil {
		res.CommissionID = conv.commission.CommissionID
		s.afterConversion(ctx, conv)
	}
	return res, nil
}

func (s *Service) applyFailure(ctx context.Context, ev domain.PaymentEvent, res WebhookResult) (WebhookResult, error) {
	now := s.nowFn()
	orderMissing := false
	err := s.uow.WithinTx(ctx, func(ctx context.Context, tx ports.TxRepositories) error {
		applied, err := tx.Orders.TransitionStatus(ctx, ev.OrderID, domain.PaymentStatusCreated, domain.PaymentStatusFailed, domain.StatusChange{PaymentID: ev.PaymentID, FailureReason: ev.FailureReason, At: now})
		if err != nil {
			return err
		}
		current, err := tx.Orders.GetByID(ctx, ev.OrderID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				orderMissing = true
			}
			return err
		}
		if !applied {
			res.Outcome, err = domain.Resolve(current.Status, domain.PaymentStatusFailed)
			return err
		}
		res.Outcome = domain.OutcomeApplied
		return s.enqueueEvent(ctx, tx.Outbox, contracts.EventPaymentFailed, "data.order_id", current.OrderID, contracts.PaymentFailedPayload{
			OrderID: current.OrderID, PaymentID: current.GatewayPaymentID, Reason: current.FailureReason, FailedAt: formatTime(now),
		}, now)
	})
	if err != nil {
		return s.resolveTxError(ctx, res, orderMissing, err)
	}
	s.logTransition(ctx, "apply_failure", res)
	return res, nil
}

// resolveTxError separates a confirmed-missing order, which is acknowledged,
// from failures the gateway should redeliver.
func (s *Service) resolveTxError(ctx context.Context, res WebhookResult, orderMissing bool, err error) (WebhookResult, error) {
	if orderMissing {
		res.Outcome = domain.OutcomeSkippedUnknownOrder
		s.logger.WarnContext(ctx, "webhook references unknown order, skipping permanently",
			"module", "application.webhooks",
			"layer", "application",
			"operation", "apply_event",
			"outcome", string(res.Outcome),
			"event_type", res.EventType,
			"order_id", res.OrderID,
		)
		return res, nil
	}
	if errors.Is(err, domain.ErrInvalidTransition) {
		err = fmt.Errorf("%w: order %s read back in a non-terminal state", domain.ErrStorageUnavailable, res.OrderID)
	}
	err = domain.Persistence(err)
	s.logger.ErrorContext(ctx, "webhook processing failed",
		"module", "application.webhooks",
		"layer", "application",
		"operation", "apply_event",
		"outcome", "failure",
		"event_type", res.EventType,
		"order_id", res.OrderID,
		"error", err,
	)
	return WebhookResult{EventType: res.EventType, OrderID: res.OrderID}, err
}

func (s *Service) logTransition(ctx context.Context, operation string, res WebhookResult) {
	s.logger.InfoContext(ctx, "webhook processed",
		"module", "application.webhooks",
		"layer", "application",
		"operation", operation,
		"outcome", string(res.Outcome),
		"event_type", res.EventType,
		"order_id", res.OrderID,
	)
}

func (s *Service) recordDelivery(ctx context.Context, in WebhookInput, ev domain.PaymentEvent, outcome string, procErr error) {
	if s.deliveries == nil {
		return
	}
	row := ports.WebhookDelivery{
		DeliveryID: uuid.NewString(),
		EventID:    in.EventID,
		EventType:  string(ev.Type),
		OrderID:    ev.OrderID,
		PaymentID:  ev.PaymentID,
		Outcome:    outcome,
		Payload:    in.RawBody,
		ReceivedAt: s.nowFn(),
	}
	if procErr != nil {
		row.Error = procErr.Error()
	}
	if err := s.deliveries.Append(ctx, row); err != nil {
		s.logger.WarnContext(ctx, "webhook delivery log append failed",
			"module", "application.webhooks",
			"layer", "application",
			"operation", "record_delivery",
			"outcome", "failure",
			"error", err,
		)
	}
}

func (s *Service) invoicePolicy() domain.InvoicePolicy {
	return domain.InvoicePolicy{
		NumberPrefix:    s.cfg.InvoiceNumberPrefix,
		TaxRatePercent:  s.cfg.TaxRatePercent,
		LineDescription: s.cfg.InvoiceLineDescription,
	}
}
