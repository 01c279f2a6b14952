package domain

import (
	"context"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ListFilter struct {
	TenantID *int64
	Status   *Status
	// Cursor bounds, exclusive.
	BeforeCreatedAt *time.Time
	BeforeID        int64
	Limit           int
}

type MonthlyAmount struct {
	Month  string `json:"month"`
	Amount int64  `json:"amount"`
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, payment *Payment) error
	UpdateCheckout(ctx context.Context, db *gorm.DB, id int64, checkoutURL, reference *string, raw datatypes.JSON, now time.Time) error
	// MarkPaid flips a pending row to paid. Zero rows affected means another
	// confirmation already won.
	MarkPaid(ctx context.Context, db *gorm.DB, id int64, raw datatypes.JSON, now time.Time) (int64, error)
	FindByOrderCode(ctx context.Context, db *gorm.DB, orderCode int64) (*Payment, error)
	LastOrderCode(ctx context.Context, db *gorm.DB) (int64, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*Payment, error)
	PaidTotals(ctx context.Context, db *gorm.DB) (int64, int64, error)
	PaidSince(ctx context.Context, db *gorm.DB, since time.Time) ([]Payment, error)
}
