package repository

import (
	"context"
	"time"

	plandomain "github.com/smallbiznis/petlog/internal/plan/domain"
	subscriptiondomain "github.com/smallbiznis/petlog/internal/subscription/domain"
	"github.com/smallbiznis/petlog/pkg/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const subscriptionColumns = `id, tenant_id, plan, max_rooms, extra_rooms, started_at, expires_at, trial_ends_at, is_active, created_at, updated_at`

type repo struct{}

func Provide() subscriptiondomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, sub *subscriptiondomain.Subscription) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO subscriptions (`+subscriptionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ID,
		sub.TenantID,
		sub.Plan,
		sub.MaxRooms,
		sub.ExtraRooms,
		sub.StartedAt,
		sub.ExpiresAt,
		sub.TrialEndsAt,
		sub.IsActive,
		sub.CreatedAt,
		sub.UpdatedAt,
	).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, sub *subscriptiondomain.Subscription) error {
	return db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET plan = ?, max_rooms = ?, extra_rooms = ?, started_at = ?, expires_at = ?, trial_ends_at = ?, is_active = ?, updated_at = ?
		 WHERE id = ?`,
		sub.Plan,
		sub.MaxRooms,
		sub.ExtraRooms,
		sub.StartedAt,
		sub.ExpiresAt,
		sub.TrialEndsAt,
		sub.IsActive,
		sub.UpdatedAt,
		sub.ID,
	).Error
}

func (r *repo) FindByTenant(ctx context.Context, db *gorm.DB, tenantID int64) (*subscriptiondomain.Subscription, error) {
	var sub subscriptiondomain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE tenant_id = ?`,
		tenantID,
	).Scan(&sub).Error
	if err != nil {
		return nil, err
	}
	if sub.ID == 0 {
		return nil, nil
	}
	return &sub, nil
}

func (r *repo) FindByTenantForUpdate(ctx context.Context, conn *gorm.DB, tenantID int64) (*subscriptiondomain.Subscription, error) {
	var items []subscriptiondomain.Subscription
	stmt := conn.WithContext(ctx).Model(&subscriptiondomain.Subscription{}).Where("tenant_id = ?", tenantID)
	if db.SupportsRowLocks(conn) {
		stmt = stmt.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	if err := stmt.Limit(1).Find(&items).Error; err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

func (r *repo) AddExtraRooms(ctx context.Context, db *gorm.DB, tenantID int64, rooms int, now time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Model(&subscriptiondomain.Subscription{}).
		Where("tenant_id = ?", tenantID).
		Updates(map[string]any{
			"extra_rooms": gorm.Expr("extra_rooms + ?", rooms),
			"updated_at":  now,
		})
	return res.RowsAffected, res.Error
}

func (r *repo) DeactivateExpiredTrials(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET is_active = ?, updated_at = ?
		 WHERE plan = ? AND trial_ends_at IS NOT NULL AND trial_ends_at < ? AND is_active = ?`,
		false,
		now,
		plandomain.NameTrial,
		now,
		true,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) DeactivateExpiredPaid(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET is_active = ?, updated_at = ?
		 WHERE plan NOT IN ? AND expires_at IS NOT NULL AND expires_at < ? AND is_active = ?`,
		false,
		now,
		[]string{plandomain.NameTrial, plandomain.NameFree},
		now,
		true,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) Count(ctx context.Context, db *gorm.DB, activeOnly bool) (int64, error) {
	var count int64
	stmt := db.WithContext(ctx).Model(&subscriptiondomain.Subscription{})
	if activeOnly {
		stmt = stmt.Where("is_active = ?", true)
	}
	err := stmt.Count(&count).Error
	return count, err
}

func (r *repo) CountActiveTrials(ctx context.Context, db *gorm.DB) (int64, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&subscriptiondomain.Subscription{}).
		Where("plan = ? AND is_active = ?", plandomain.NameTrial, true).
		Count(&count).Error
	return count, err
}

func (r *repo) PlanDistribution(ctx context.Context, db *gorm.DB) ([]subscriptiondomain.PlanCount, error) {
	var rows []subscriptiondomain.PlanCount
	err := db.WithContext(ctx).Raw(
		`SELECT plan, COUNT(*) AS count FROM subscriptions GROUP BY plan ORDER BY plan`,
	).Scan(&rows).Error
	return rows, err
}
