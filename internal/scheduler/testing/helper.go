// Package testing moves subscription windows around so sweeps can be
// exercised without waiting for real time to pass.
package testing

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type TimeAccelerator struct {
	db *gorm.DB
}

func NewTimeAccelerator(db *gorm.DB) *TimeAccelerator {
	return &TimeAccelerator{db: db}
}

// ExpireTrial moves the tenant's trial end just before now.
func (ta *TimeAccelerator) ExpireTrial(ctx context.Context, tenantID int64, now time.Time) error {
	return ta.db.WithContext(ctx).Exec(
		`UPDATE subscriptions SET trial_ends_at = ?, updated_at = ? WHERE tenant_id = ?`,
		now.Add(-time.Minute),
		now,
		tenantID,
	).Error
}

// ExpirePlan moves the tenant's paid expiry just before now.
func (ta *TimeAccelerator) ExpirePlan(ctx context.Context, tenantID int64, now time.Time) error {
	return ta.db.WithContext(ctx).Exec(
		`UPDATE subscriptions SET expires_at = ?, updated_at = ? WHERE tenant_id = ?`,
		now.Add(-time.Minute),
		now,
		tenantID,
	).Error
}

// SetWindow pins a subscription to an exact paid window.
func (ta *TimeAccelerator) SetWindow(ctx context.Context, tenantID int64, plan string, startedAt, expiresAt time.Time) error {
	return ta.db.WithContext(ctx).Exec(
		`UPDATE subscriptions SET plan = ?, started_at = ?, expires_at = ?, is_active = ?, updated_at = ? WHERE tenant_id = ?`,
		plan,
		startedAt,
		expiresAt,
		true,
		startedAt,
		tenantID,
	).Error
}
