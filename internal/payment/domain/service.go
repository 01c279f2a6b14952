package domain

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/smallbiznis/petlog/internal/proration"
	"github.com/smallbiznis/petlog/pkg/db/pagination"
)

type Service interface {
	QuoteUpgrade(ctx context.Context, tenantID int64, plan string) (*proration.Quote, error)
	QuoteExtraRooms(ctx context.Context, tenantID int64, rooms int) (*proration.Quote, error)
	QuoteRenewal(ctx context.Context, tenantID int64, plan string, months, extraRooms int) (*proration.Quote, error)

	Checkout(ctx context.Context, req CheckoutRequest) (*CheckoutResponse, error)
	// HandleWebhook never fails the transport; the result tells the gateway
	// whether to redeliver.
	HandleWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) WebhookResult
	CheckPayment(ctx context.Context, tenantID, orderCode int64) (*Response, error)

	History(ctx context.Context, tenantID int64) ([]Response, error)
	ListPayments(ctx context.Context, req ListRequest) (*ListResponse, error)
	Revenue(ctx context.Context) (*Revenue, error)
}

type CheckoutRequest struct {
	TenantID   int64  `json:"-"`
	Plan       string `json:"plan"`
	Months     int    `json:"months"`
	Upgrade    bool   `json:"upgrade"`
	ExtraRooms int    `json:"extra_rooms"`
	Rooms      int    `json:"rooms"`
	ReturnURL  string `json:"-"`
	CancelURL  string `json:"-"`
}

type CheckoutResponse struct {
	CheckoutURL string `json:"checkout_url"`
	OrderCode   int64  `json:"order_code"`
	Amount      int64  `json:"amount"`
}

type WebhookResult struct {
	Success bool `json:"success"`
}

type ListRequest struct {
	TenantID *int64
	Status   string
	pagination.Pagination
}

type ListResponse struct {
	Items    []Response          `json:"items"`
	PageInfo pagination.PageInfo `json:"page_info"`
}

type Response struct {
	ID          string     `json:"id"`
	TenantID    int64      `json:"tenant_id"`
	OrderCode   int64      `json:"order_code"`
	Amount      int64      `json:"amount"`
	PlanName    string     `json:"plan_name"`
	Kind        Kind       `json:"kind"`
	Months      int        `json:"months"`
	RoomCount   int        `json:"room_count,omitempty"`
	ExtraRooms  int        `json:"extra_rooms,omitempty"`
	Status      Status     `json:"status"`
	Gateway     string     `json:"gateway"`
	CheckoutURL *string    `json:"checkout_url,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	PaidAt      *time.Time `json:"paid_at,omitempty"`
}

type Revenue struct {
	TotalRevenue   int64           `json:"total_revenue"`
	TotalPaid      int64           `json:"total_paid"`
	MonthlyRevenue []MonthlyAmount `json:"monthly_revenue"`
}

var (
	ErrNotFound         = errors.New("payment_not_found")
	ErrInvalidOrderCode = errors.New("invalid_order_code")
	ErrInvalidTenant    = errors.New("invalid_tenant_id")
	ErrInvalidPlan      = errors.New("invalid_plan")
	ErrInvalidStatus    = errors.New("invalid_payment_status")
	ErrInvalidCursor    = errors.New("invalid_page_token")
	ErrInvalidAmount    = errors.New("invalid_amount")
)
