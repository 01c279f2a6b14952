// Package stripe issues hosted Checkout Sessions through the Stripe API.
package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/smallbiznis/petlog/internal/config"
	paymentdomain "github.com/smallbiznis/petlog/internal/payment/domain"
	stripeapi "github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
	"github.com/stripe/stripe-go/v78/webhook"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

const (
	providerName    = "stripe"
	metadataKey     = "order_code"
	signatureHeader = "Stripe-Signature"
)

type Factory struct {
	backendURL string
	httpClient *http.Client
}

func NewFactory() *Factory {
	return &Factory{}
}

// WithBackend points the API client at another base URL, mostly for tests.
func (f *Factory) WithBackend(url string, httpClient *http.Client) *Factory {
	f.backendURL = url
	f.httpClient = httpClient
	return f
}

func (f *Factory) Provider() string {
	return providerName
}

func (f *Factory) New(cfg config.PaymentConfig, log *zap.Logger) (paymentdomain.Gateway, error) {
	c := cfg.Stripe
	if strings.TrimSpace(c.SecretKey) == "" {
		return nil, paymentdomain.ErrGatewayNotConfigured
	}
	if log == nil {
		log = zap.NewNop()
	}
	currency := strings.ToLower(strings.TrimSpace(c.Currency))
	if currency == "" {
		currency = "vnd"
	}

	httpClient := f.httpClient
	if httpClient == nil {
		httpClient = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	backendCfg := &stripeapi.BackendConfig{HTTPClient: httpClient}
	if f.backendURL != "" {
		backendCfg.URL = stripeapi.String(f.backendURL)
		backendCfg.MaxNetworkRetries = stripeapi.Int64(0)
	}
	backend := stripeapi.GetBackendWithConfig(stripeapi.APIBackend, backendCfg)
	api := client.New(c.SecretKey, &stripeapi.Backends{
		API:     backend,
		Connect: backend,
		Uploads: backend,
	})

	return &Gateway{
		api:           api,
		webhookSecret: c.WebhookSecret,
		currency:      currency,
		log:           log,
	}, nil
}

type Gateway struct {
	api           *client.API
	webhookSecret string
	currency      string
	log           *zap.Logger
}

func (g *Gateway) Name() string { return providerName }

func (g *Gateway) CreateOrder(ctx context.Context, req paymentdomain.OrderRequest) (*paymentdomain.Checkout, error) {
	orderCode := strconv.FormatInt(req.OrderCode, 10)
	name := strings.TrimSpace(req.Description)
	if name == "" {
		name = "PetLog " + orderCode
	}

	params := &stripeapi.CheckoutSessionParams{
		Mode:              stripeapi.String(string(stripeapi.CheckoutSessionModePayment)),
		SuccessURL:        stripeapi.String(req.ReturnURL),
		CancelURL:         stripeapi.String(req.CancelURL),
		ClientReferenceID: stripeapi.String(orderCode),
		LineItems: []*stripeapi.CheckoutSessionLineItemParams{{
			Quantity: stripeapi.Int64(1),
			PriceData: &stripeapi.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripeapi.String(g.currency),
				UnitAmount: stripeapi.Int64(req.Amount),
				ProductData: &stripeapi.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripeapi.String(name),
				},
			},
		}},
	}
	params.Context = ctx
	params.AddMetadata(metadataKey, orderCode)

	sess, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		var se *stripeapi.Error
		if errors.As(err, &se) {
			g.log.Warn("stripe rejected checkout session",
				zap.Int64("order_code", req.OrderCode),
				zap.Int("status", se.HTTPStatusCode),
				zap.String("code", string(se.Code)),
			)
		}
		return nil, fmt.Errorf("%w: %v", paymentdomain.ErrGatewayFailed, err)
	}
	if sess.URL == "" {
		return nil, fmt.Errorf("%w: missing checkout url", paymentdomain.ErrGatewayFailed)
	}
	raw, _ := json.Marshal(sess)
	return &paymentdomain.Checkout{URL: sess.URL, Reference: sess.ID, Raw: raw}, nil
}

func (g *Gateway) OrderStatus(ctx context.Context, ref paymentdomain.OrderRef) (paymentdomain.OrderStatus, error) {
	if ref.Reference == "" {
		return paymentdomain.OrderUnknown, paymentdomain.ErrInvalidPayload
	}
	params := &stripeapi.CheckoutSessionParams{}
	params.Context = ctx
	sess, err := g.api.CheckoutSessions.Get(ref.Reference, params)
	if err != nil {
		return paymentdomain.OrderUnknown, fmt.Errorf("%w: %v", paymentdomain.ErrGatewayFailed, err)
	}
	return sessionStatus(sess), nil
}

func sessionStatus(sess *stripeapi.CheckoutSession) paymentdomain.OrderStatus {
	switch {
	case sess.PaymentStatus == stripeapi.CheckoutSessionPaymentStatusPaid:
		return paymentdomain.OrderPaid
	case sess.Status == stripeapi.CheckoutSessionStatusExpired:
		return paymentdomain.OrderExpired
	case sess.Status == stripeapi.CheckoutSessionStatusOpen || sess.Status == stripeapi.CheckoutSessionStatusComplete:
		return paymentdomain.OrderPending
	default:
		return paymentdomain.OrderUnknown
	}
}

func (g *Gateway) VerifyWebhook(ctx context.Context, payload []byte, headers http.Header) (*paymentdomain.WebhookEvent, error) {
	if g.webhookSecret == "" {
		return nil, paymentdomain.ErrGatewayNotConfigured
	}
	sig := strings.TrimSpace(headers.Get(signatureHeader))
	if sig == "" {
		return nil, paymentdomain.ErrInvalidSignature
	}
	event, err := webhook.ConstructEventWithOptions(payload, sig, g.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, paymentdomain.ErrInvalidSignature
	}

	switch string(event.Type) {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded", "checkout.session.async_payment_failed":
	default:
		return nil, paymentdomain.ErrEventIgnored
	}
	if event.Data == nil {
		return nil, paymentdomain.ErrInvalidPayload
	}

	var sess stripeapi.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	code := sess.Metadata[metadataKey]
	if code == "" {
		code = sess.ClientReferenceID
	}
	orderCode, err := strconv.ParseInt(code, 10, 64)
	if err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	return &paymentdomain.WebhookEvent{
		OrderCode: orderCode,
		Paid:      sess.PaymentStatus == stripeapi.CheckoutSessionPaymentStatusPaid,
		Reference: sess.ID,
		Raw:       payload,
	}, nil
}
