package repository

import (
	"context"

	"github.com/smallbiznis/petlog/internal/plan/domain"
	"github.com/smallbiznis/petlog/pkg/db/option"
	"gorm.io/gorm"
)

const planColumns = `id, name, display_name, description, price, max_rooms, is_active, sort_order, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, plan *domain.Plan) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO pricing_plans (`+planColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		plan.ID,
		plan.Name,
		plan.DisplayName,
		plan.Description,
		plan.Price,
		plan.MaxRooms,
		plan.IsActive,
		plan.SortOrder,
		plan.CreatedAt,
		plan.UpdatedAt,
	).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, plan *domain.Plan) error {
	return db.WithContext(ctx).Exec(
		`UPDATE pricing_plans
		 SET display_name = ?, description = ?, price = ?, max_rooms = ?, is_active = ?, sort_order = ?, updated_at = ?
		 WHERE id = ?`,
		plan.DisplayName,
		plan.Description,
		plan.Price,
		plan.MaxRooms,
		plan.IsActive,
		plan.SortOrder,
		plan.UpdatedAt,
		plan.ID,
	).Error
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, id int64) (int64, error) {
	res := db.WithContext(ctx).Exec(`DELETE FROM pricing_plans WHERE id = ?`, id)
	return res.RowsAffected, res.Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id int64) (*domain.Plan, error) {
	var p domain.Plan
	err := db.WithContext(ctx).Raw(
		`SELECT `+planColumns+` FROM pricing_plans WHERE id = ?`,
		id,
	).Scan(&p).Error
	if err != nil {
		return nil, err
	}
	if p.ID == 0 {
		return nil, nil
	}
	return &p, nil
}

func (r *repo) FindByName(ctx context.Context, db *gorm.DB, name string) (*domain.Plan, error) {
	var p domain.Plan
	err := db.WithContext(ctx).Raw(
		`SELECT `+planColumns+` FROM pricing_plans WHERE name = ?`,
		name,
	).Scan(&p).Error
	if err != nil {
		return nil, err
	}
	if p.ID == 0 {
		return nil, nil
	}
	return &p, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, activeOnly bool) ([]domain.Plan, error) {
	var items []domain.Plan
	stmt := db.WithContext(ctx).Model(&domain.Plan{})
	if activeOnly {
		stmt = stmt.Where("is_active = ?", true)
	}
	stmt = option.WithSortBy(option.QuerySortBy{
		SortBy:  "sort_order",
		OrderBy: "asc",
		Allow:   map[string]bool{"sort_order": true},
	}).Apply(stmt)

	if err := stmt.Order("id ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) Count(ctx context.Context, db *gorm.DB) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Model(&domain.Plan{}).Count(&count).Error
	return count, err
}
