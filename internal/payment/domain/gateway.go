package domain

import (
	"context"
	"errors"
	"net/http"

	"github.com/smallbiznis/petlog/internal/config"
	"go.uber.org/zap"
)

type OrderStatus string

const (
	OrderPaid      OrderStatus = "PAID"
	OrderPending   OrderStatus = "PENDING"
	OrderCancelled OrderStatus = "CANCELLED"
	OrderExpired   OrderStatus = "EXPIRED"
	OrderUnknown   OrderStatus = "UNKNOWN"
)

type OrderItem struct {
	Name     string
	Quantity int
	Price    int64
}

type OrderRequest struct {
	OrderCode   int64
	Amount      int64
	Description string
	ReturnURL   string
	CancelURL   string
	Items       []OrderItem
}

// Checkout is the hosted payment page issued by a gateway.
type Checkout struct {
	URL       string
	Reference string
	Raw       []byte
}

type WebhookEvent struct {
	OrderCode int64
	Paid      bool
	Reference string
	Raw       []byte
}

type OrderRef struct {
	OrderCode int64
	Reference string
}

// Gateway is a hosted-checkout payment provider.
type Gateway interface {
	Name() string
	CreateOrder(ctx context.Context, req OrderRequest) (*Checkout, error)
	// VerifyWebhook authenticates a callback. It returns ErrInvalidSignature
	// for forged payloads and ErrEventIgnored for events that carry no
	// payment outcome.
	VerifyWebhook(ctx context.Context, payload []byte, headers http.Header) (*WebhookEvent, error)
	OrderStatus(ctx context.Context, ref OrderRef) (OrderStatus, error)
}

// GatewayFactory builds a gateway from process config. It returns
// ErrGatewayNotConfigured when credentials are missing.
type GatewayFactory interface {
	Provider() string
	New(cfg config.PaymentConfig, log *zap.Logger) (Gateway, error)
}

var (
	ErrProviderNotFound     = errors.New("payment_provider_not_found")
	ErrGatewayNotConfigured = errors.New("payment_gateway_not_configured")
	ErrGatewayFailed        = errors.New("payment link creation failed")
	ErrInvalidSignature     = errors.New("invalid_signature")
	ErrInvalidPayload       = errors.New("invalid_payload")
	ErrEventIgnored         = errors.New("event_ignored")
)
