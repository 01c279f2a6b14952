// Package payos talks to the PayOS hosted payment-link API.
package payos

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/petlog/internal/config"
	paymentdomain "github.com/smallbiznis/petlog/internal/payment/domain"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

const (
	providerName = "payos"
	// PayOS rejects descriptions longer than this for non-linked bank accounts.
	maxDescriptionLen = 25
	successCode       = "00"
	requestTimeout    = 15 * time.Second
)

type Factory struct {
	client *http.Client
}

func NewFactory() *Factory {
	return &Factory{}
}

// WithHTTPClient overrides the transport, mostly for tests.
func (f *Factory) WithHTTPClient(client *http.Client) *Factory {
	f.client = client
	return f
}

func (f *Factory) Provider() string {
	return providerName
}

func (f *Factory) New(cfg config.PaymentConfig, log *zap.Logger) (paymentdomain.Gateway, error) {
	c := cfg.PayOS
	if strings.TrimSpace(c.ClientID) == "" || strings.TrimSpace(c.APIKey) == "" || strings.TrimSpace(c.ChecksumKey) == "" {
		return nil, paymentdomain.ErrGatewayNotConfigured
	}
	client := f.client
	if client == nil {
		client = &http.Client{
			Timeout:   requestTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	if log == nil {
		log = zap.NewNop()
	}
	baseURL := strings.TrimRight(c.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api-merchant.payos.vn"
	}
	return &Gateway{
		baseURL:     baseURL,
		clientID:    c.ClientID,
		apiKey:      c.APIKey,
		checksumKey: c.ChecksumKey,
		client:      client,
		log:         log,
	}, nil
}

type Gateway struct {
	baseURL     string
	clientID    string
	apiKey      string
	checksumKey string
	client      *http.Client
	log         *zap.Logger
}

func (g *Gateway) Name() string { return providerName }

type item struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Price    int64  `json:"price"`
}

type createRequest struct {
	OrderCode   int64  `json:"orderCode"`
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
	Items       []item `json:"items,omitempty"`
	CancelURL   string `json:"cancelUrl"`
	ReturnURL   string `json:"returnUrl"`
	Signature   string `json:"signature"`
}

type envelope struct {
	Code string          `json:"code"`
	Desc string          `json:"desc"`
	Data json.RawMessage `json:"data"`
}

type createData struct {
	CheckoutURL   string `json:"checkoutUrl"`
	PaymentLinkID string `json:"paymentLinkId"`
}

type statusData struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func (g *Gateway) CreateOrder(ctx context.Context, req paymentdomain.OrderRequest) (*paymentdomain.Checkout, error) {
	description := truncate(req.Description, maxDescriptionLen)
	body := createRequest{
		OrderCode:   req.OrderCode,
		Amount:      req.Amount,
		Description: description,
		CancelURL:   req.CancelURL,
		ReturnURL:   req.ReturnURL,
		Signature:   g.sign(paymentRequestSignData(req.Amount, req.CancelURL, description, req.OrderCode, req.ReturnURL)),
	}
	for _, it := range req.Items {
		body.Items = append(body.Items, item{Name: it.Name, Quantity: it.Quantity, Price: it.Price})
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	raw, env, err := g.do(ctx, http.MethodPost, "/v2/payment-requests", payload)
	if err != nil {
		return nil, err
	}
	if env.Code != successCode {
		g.log.Warn("payos rejected payment request",
			zap.Int64("order_code", req.OrderCode),
			zap.String("code", env.Code),
			zap.String("desc", env.Desc),
		)
		return nil, fmt.Errorf("%w: %s", paymentdomain.ErrGatewayFailed, env.Desc)
	}

	var data createData
	if err := json.Unmarshal(env.Data, &data); err != nil || data.CheckoutURL == "" {
		return nil, fmt.Errorf("%w: missing checkout url", paymentdomain.ErrGatewayFailed)
	}
	return &paymentdomain.Checkout{
		URL:       data.CheckoutURL,
		Reference: data.PaymentLinkID,
		Raw:       raw,
	}, nil
}

func (g *Gateway) OrderStatus(ctx context.Context, ref paymentdomain.OrderRef) (paymentdomain.OrderStatus, error) {
	_, env, err := g.do(ctx, http.MethodGet, "/v2/payment-requests/"+strconv.FormatInt(ref.OrderCode, 10), nil)
	if err != nil {
		return paymentdomain.OrderUnknown, err
	}
	if env.Code != successCode {
		return paymentdomain.OrderUnknown, fmt.Errorf("%w: %s", paymentdomain.ErrGatewayFailed, env.Desc)
	}
	var data statusData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return paymentdomain.OrderUnknown, paymentdomain.ErrInvalidPayload
	}
	switch strings.ToUpper(data.Status) {
	case "PAID":
		return paymentdomain.OrderPaid, nil
	case "PENDING", "PROCESSING":
		return paymentdomain.OrderPending, nil
	case "CANCELLED":
		return paymentdomain.OrderCancelled, nil
	case "EXPIRED":
		return paymentdomain.OrderExpired, nil
	default:
		return paymentdomain.OrderUnknown, nil
	}
}

type webhookBody struct {
	Code      string          `json:"code"`
	Desc      string          `json:"desc"`
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	Signature string          `json:"signature"`
}

type webhookData struct {
	OrderCode     int64  `json:"orderCode"`
	Code          string `json:"code"`
	Reference     string `json:"reference"`
	PaymentLinkID string `json:"paymentLinkId"`
}

func (g *Gateway) VerifyWebhook(ctx context.Context, payload []byte, _ http.Header) (*paymentdomain.WebhookEvent, error) {
	var body webhookBody
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if len(body.Data) == 0 || string(body.Data) == "null" || body.Signature == "" {
		return nil, paymentdomain.ErrInvalidSignature
	}

	signData, err := webhookSignData(body.Data)
	if err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	expected := g.sign(signData)
	if !hmac.Equal([]byte(strings.ToLower(body.Signature)), []byte(expected)) {
		return nil, paymentdomain.ErrInvalidSignature
	}

	var data webhookData
	if err := json.Unmarshal(body.Data, &data); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	reference := data.PaymentLinkID
	if reference == "" {
		reference = data.Reference
	}
	return &paymentdomain.WebhookEvent{
		OrderCode: data.OrderCode,
		Paid:      body.Code == successCode && data.Code == successCode,
		Reference: reference,
		Raw:       payload,
	}, nil
}

func (g *Gateway) do(ctx context.Context, method, path string, payload []byte) ([]byte, *envelope, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("x-client-id", g.clientID)
	req.Header.Set("x-api-key", g.apiKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", paymentdomain.ErrGatewayFailed, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", paymentdomain.ErrGatewayFailed, err)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, nil, fmt.Errorf("%w: status %d", paymentdomain.ErrGatewayFailed, resp.StatusCode)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", paymentdomain.ErrGatewayFailed, errors.Join(paymentdomain.ErrInvalidPayload, err))
	}
	return raw, &env, nil
}

func (g *Gateway) sign(data string) string {
	mac := hmac.New(sha256.New, []byte(g.checksumKey))
	_, _ = mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

// paymentRequestSignData is the alphabetical key=value string PayOS signs
// payment requests over.
func paymentRequestSignData(amount int64, cancelURL, description string, orderCode int64, returnURL string) string {
	return fmt.Sprintf("amount=%d&cancelUrl=%s&description=%s&orderCode=%d&returnUrl=%s",
		amount, cancelURL, description, orderCode, returnURL)
}

// webhookSignData flattens the webhook data object into sorted key=value
// pairs. Nulls become empty strings and nested values are re-encoded as JSON.
func webhookSignData(raw json.RawMessage) (string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return "", err
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		var value string
		switch v := fields[k].(type) {
		case nil:
		case string:
			value = v
		case json.Number:
			value = v.String()
		case bool:
			value = strconv.FormatBool(v)
		default:
			b, err := json.Marshal(v)
			if err != nil {
				return "", err
			}
			value = string(b)
		}
		parts = append(parts, k+"="+value)
	}
	return strings.Join(parts, "&"), nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
