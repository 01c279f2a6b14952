package stripe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/smallbiznis/petlog/internal/config"
	paymentdomain "github.com/smallbiznis/petlog/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v78/webhook"
	"go.uber.org/zap"
)

const webhookSecret = "whsec_test"

func newGateway(t *testing.T, handler http.HandlerFunc) *Gateway {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := config.PaymentConfig{Stripe: config.StripeConfig{
		SecretKey:     "sk_test_123",
		WebhookSecret: webhookSecret,
		Currency:      "vnd",
	}}
	gw, err := NewFactory().WithBackend(srv.URL, srv.Client()).New(cfg, zap.NewNop())
	require.NoError(t, err)
	return gw.(*Gateway)
}

func signed(t *testing.T, payload string) ([]byte, http.Header) {
	t.Helper()
	sp := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    webhookSecret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})
	h := http.Header{}
	h.Set(signatureHeader, sp.Header)
	return sp.Payload, h
}

func TestFactoryRequiresSecretKey(t *testing.T) {
	_, err := NewFactory().New(config.PaymentConfig{}, zap.NewNop())
	assert.ErrorIs(t, err, paymentdomain.ErrGatewayNotConfigured)
}

func TestCreateOrder(t *testing.T) {
	gw := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "payment", r.PostForm.Get("mode"))
		assert.Equal(t, "42", r.PostForm.Get("client_reference_id"))
		assert.Equal(t, "42", r.PostForm.Get("metadata[order_code]"))
		assert.Equal(t, "199000", r.PostForm.Get("line_items[0][price_data][unit_amount]"))
		assert.Equal(t, "vnd", r.PostForm.Get("line_items[0][price_data][currency]"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cs_test_1","object":"checkout.session","url":"https://checkout.stripe.com/c/pay/cs_test_1","status":"open","payment_status":"unpaid"}`))
	})

	checkout, err := gw.CreateOrder(context.Background(), paymentdomain.OrderRequest{
		OrderCode:   42,
		Amount:      199000,
		Description: "PetLog Pro",
		ReturnURL:   "http://app/dashboard/pricing?status=success",
		CancelURL:   "http://app/dashboard/pricing?status=cancel",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.stripe.com/c/pay/cs_test_1", checkout.URL)
	assert.Equal(t, "cs_test_1", checkout.Reference)
}

func TestCreateOrderAPIError(t *testing.T) {
	gw := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"bad amount"}}`))
	})
	_, err := gw.CreateOrder(context.Background(), paymentdomain.OrderRequest{OrderCode: 1, Amount: 1})
	assert.ErrorIs(t, err, paymentdomain.ErrGatewayFailed)
}

func TestOrderStatus(t *testing.T) {
	gw := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/checkout/sessions/cs_test_1", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cs_test_1","object":"checkout.session","status":"complete","payment_status":"paid"}`))
	})
	status, err := gw.OrderStatus(context.Background(), paymentdomain.OrderRef{OrderCode: 42, Reference: "cs_test_1"})
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.OrderPaid, status)

	_, err = gw.OrderStatus(context.Background(), paymentdomain.OrderRef{OrderCode: 42})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidPayload)
}

func TestVerifyWebhookCompleted(t *testing.T) {
	gw := newGateway(t, func(w http.ResponseWriter, r *http.Request) {})
	payload, headers := signed(t, `{
		"id": "evt_1",
		"object": "event",
		"type": "checkout.session.completed",
		"data": {"object": {"id": "cs_test_1", "object": "checkout.session", "client_reference_id": "42", "metadata": {"order_code": "42"}, "payment_status": "paid", "status": "complete"}}
	}`)

	event, err := gw.VerifyWebhook(context.Background(), payload, headers)
	require.NoError(t, err)
	assert.Equal(t, int64(42), event.OrderCode)
	assert.True(t, event.Paid)
	assert.Equal(t, "cs_test_1", event.Reference)
}

func TestVerifyWebhookIgnoresOtherEvents(t *testing.T) {
	gw := newGateway(t, func(w http.ResponseWriter, r *http.Request) {})
	payload, headers := signed(t, `{"id":"evt_2","object":"event","type":"customer.created","data":{"object":{"id":"cus_1","object":"customer"}}}`)

	_, err := gw.VerifyWebhook(context.Background(), payload, headers)
	assert.ErrorIs(t, err, paymentdomain.ErrEventIgnored)
}

func TestVerifyWebhookRejectsBadSignature(t *testing.T) {
	gw := newGateway(t, func(w http.ResponseWriter, r *http.Request) {})
	payload := []byte(`{"id":"evt_3","object":"event","type":"checkout.session.completed","data":{"object":{}}}`)

	h := http.Header{}
	h.Set(signatureHeader, "t=1,v1=deadbeef")
	_, err := gw.VerifyWebhook(context.Background(), payload, h)
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidSignature)

	_, err = gw.VerifyWebhook(context.Background(), payload, http.Header{})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidSignature)
}
