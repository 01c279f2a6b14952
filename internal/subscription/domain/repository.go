package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, sub *Subscription) error
	Update(ctx context.Context, db *gorm.DB, sub *Subscription) error
	FindByTenant(ctx context.Context, db *gorm.DB, tenantID int64) (*Subscription, error)
	// FindByTenantForUpdate row-locks the record on dialects that support it.
	FindByTenantForUpdate(ctx context.Context, db *gorm.DB, tenantID int64) (*Subscription, error)
	AddExtraRooms(ctx context.Context, db *gorm.DB, tenantID int64, rooms int, now time.Time) (int64, error)

	DeactivateExpiredTrials(ctx context.Context, db *gorm.DB, now time.Time) (int64, error)
	DeactivateExpiredPaid(ctx context.Context, db *gorm.DB, now time.Time) (int64, error)

	Count(ctx context.Context, db *gorm.DB, activeOnly bool) (int64, error)
	CountActiveTrials(ctx context.Context, db *gorm.DB) (int64, error)
	PlanDistribution(ctx context.Context, db *gorm.DB) ([]PlanCount, error)
}
