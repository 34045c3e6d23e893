package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/viralforge/mesh/services/financial-rails/M92-payment-attribution-service/internal/domain"
	"github.com/viralforge/mesh/services/financial-rails/M92-payment-attribution-service/internal/ports"
)

const (
	defaultBaseURL  = "https://api.razorpay.com"
	ordersPath      = "/v1/orders"
	maxResponseBody = 1 << 20
)

// Client creates orders against a Razorpay-compatible REST API.
type Client struct {
	keyID     string
	keySecret string
	baseURL   string
	http      *http.Client
}

type Options struct {
	KeyID     string
	KeySecret string
	BaseURL   string
	Timeout   time.Duration
}

func NewClient(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.KeyID) == "" || strings.TrimSpace(opts.KeySecret) == "" {
		return nil, domain.ErrGatewayNotConfigured
	}
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		keyID:     opts.KeyID,
		keySecret: opts.KeySecret,
		baseURL:   base,
		http:      &http.Client{Timeout: timeout},
	}, nil
}

func (c *Client) PublicKey() string { return c.keyID }

type createOrderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt,omitempty"`
	Notes    map[string]string `json:"notes,omitempty"`
}

type orderResponse struct {
	ID       string `json:"id"`
	Amount   any    `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
}

type errorResponse struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

func (c *Client) CreateOrder(ctx context.Context, in ports.CreateGatewayOrderInput) (ports.GatewayOrder, error) {
	payload := createOrderRequest{
		Amount:   in.AmountMinor,
		Currency: in.Currency,
		Receipt:  in.Receipt,
	}
	if len(in.Notes) > 0 {
		// the gateway only accepts flat string notes
		payload.Notes = make(map[string]string, len(in.Notes))
		for k, v := range in.Notes {
			payload.Notes[k] = cast.ToString(v)
		}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return ports.GatewayOrder{}, fmt.Errorf("marshal gateway order: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+ordersPath, bytes.NewReader(body))
	if err != nil {
		return ports.GatewayOrder{}, fmt.Errorf("build gateway request: %w", err)
	}
	req.SetBasicAuth(c.keyID, c.keySecret)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return ports.GatewayOrder{}, &domain.GatewayError{Reason: err.Error()}
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return ports.GatewayOrder{}, &domain.GatewayError{StatusCode: resp.StatusCode, Reason: "read response: " + err.Error()}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return ports.GatewayOrder{}, decodeError(resp.StatusCode, raw)
	}

	var out orderResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return ports.GatewayOrder{}, &domain.GatewayError{StatusCode: resp.StatusCode, Reason: "decode response: " + err.Error()}
	}
	if out.ID == "" {
		return ports.GatewayOrder{}, &domain.GatewayError{StatusCode: resp.StatusCode, Reason: "response carried no order id"}
	}
	return ports.GatewayOrder{
		ID:          out.ID,
		AmountMinor: cast.ToInt64(out.Amount),
		Currency:    out.Currency,
		Status:      out.Status,
	}, nil
}

func decodeError(status int, raw []byte) *domain.GatewayError {
	gwErr := &domain.GatewayError{StatusCode: status, Reason: http.StatusText(status)}
	var body errorResponse
	if err := json.Unmarshal(raw, &body); err == nil {
		if body.Error.Code != "" {
			gwErr.Code = body.Error.Code
		}
		if body.Error.Description != "" {
			gwErr.Reason = body.Error.Description
		}
	}
	return gwErr
}

var _ ports.PaymentGateway = (*Client)(nil)
