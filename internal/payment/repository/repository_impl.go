package repository

import (
	"context"
	"time"

	paymentdomain "github.com/smallbiznis/petlog/internal/payment/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const paymentColumns = `id, tenant_id, order_code, amount, plan_name, kind, months, room_count, extra_rooms, status, gateway, gateway_ref, checkout_url, gateway_data, created_at, updated_at, paid_at`

type repo struct{}

func Provide() paymentdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, p *paymentdomain.Payment) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payments (`+paymentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID,
		p.TenantID,
		p.OrderCode,
		p.Amount,
		p.PlanName,
		p.Kind,
		p.Months,
		p.RoomCount,
		p.ExtraRooms,
		p.Status,
		p.Gateway,
		p.GatewayRef,
		p.CheckoutURL,
		p.GatewayData,
		p.CreatedAt,
		p.UpdatedAt,
		p.PaidAt,
	).Error
}

func (r *repo) UpdateCheckout(ctx context.Context, db *gorm.DB, id int64, checkoutURL, reference *string, raw datatypes.JSON, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payments SET checkout_url = ?, gateway_ref = ?, gateway_data = ?, updated_at = ? WHERE id = ?`,
		checkoutURL,
		reference,
		raw,
		now,
		id,
	).Error
}

func (r *repo) MarkPaid(ctx context.Context, db *gorm.DB, id int64, raw datatypes.JSON, now time.Time) (int64, error) {
	stmt := `UPDATE payments SET status = ?, paid_at = ?, updated_at = ? WHERE id = ? AND status = ?`
	args := []any{paymentdomain.StatusPaid, now, now, id, paymentdomain.StatusPending}
	if len(raw) > 0 {
		stmt = `UPDATE payments SET status = ?, paid_at = ?, updated_at = ?, gateway_data = ? WHERE id = ? AND status = ?`
		args = []any{paymentdomain.StatusPaid, now, now, raw, id, paymentdomain.StatusPending}
	}
	res := db.WithContext(ctx).Exec(stmt, args...)
	return res.RowsAffected, res.Error
}

func (r *repo) FindByOrderCode(ctx context.Context, db *gorm.DB, orderCode int64) (*paymentdomain.Payment, error) {
	var p paymentdomain.Payment
	err := db.WithContext(ctx).Raw(
		`SELECT `+paymentColumns+` FROM payments WHERE order_code = ?`,
		orderCode,
	).Scan(&p).Error
	if err != nil {
		return nil, err
	}
	if p.ID == 0 {
		return nil, nil
	}
	return &p, nil
}

func (r *repo) LastOrderCode(ctx context.Context, db *gorm.DB) (int64, error) {
	var last int64
	err := db.WithContext(ctx).Raw(`SELECT COALESCE(MAX(order_code), 0) FROM payments`).Scan(&last).Error
	return last, err
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter paymentdomain.ListFilter) ([]*paymentdomain.Payment, error) {
	stmt := db.WithContext(ctx).Model(&paymentdomain.Payment{})
	if filter.TenantID != nil {
		stmt = stmt.Where("tenant_id = ?", *filter.TenantID)
	}
	if filter.Status != nil {
		stmt = stmt.Where("status = ?", *filter.Status)
	}
	if filter.BeforeCreatedAt != nil {
		stmt = stmt.Where("(created_at < ?) OR (created_at = ? AND id < ?)",
			*filter.BeforeCreatedAt, *filter.BeforeCreatedAt, filter.BeforeID)
	}
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit)
	}

	var items []*paymentdomain.Payment
	if err := stmt.Order("created_at DESC").Order("id DESC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) PaidTotals(ctx context.Context, db *gorm.DB) (int64, int64, error) {
	var row struct {
		Total int64
		Count int64
	}
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(amount), 0) AS total, COUNT(*) AS count FROM payments WHERE status = ?`,
		paymentdomain.StatusPaid,
	).Scan(&row).Error
	return row.Total, row.Count, err
}

func (r *repo) PaidSince(ctx context.Context, db *gorm.DB, since time.Time) ([]paymentdomain.Payment, error) {
	var items []paymentdomain.Payment
	err := db.WithContext(ctx).
		Model(&paymentdomain.Payment{}).
		Select("id", "amount", "paid_at").
		Where("status = ? AND paid_at IS NOT NULL AND paid_at >= ?", paymentdomain.StatusPaid, since).
		Find(&items).Error
	return items, err
}
