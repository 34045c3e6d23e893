package ports

import "context"

type CreateGatewayOrderInput struct {
	AmountMinor int64
	Currency    string
	Receipt     string
	Notes       map[string]any
}

type GatewayOrder struct {
	ID          string
	AmountMinor int64
	Currency    string
	Status      string
}

type PaymentGateway interface {
	CreateOrder(ctx context.Context, in CreateGatewayOrderInput) (GatewayOrder, error)
	// PublicKey is the key id the checkout widget needs; it is safe to expose.
	PublicKey() string
}
