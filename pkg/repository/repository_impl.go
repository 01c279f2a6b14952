package repository

import (
	"context"
	"errors"

	"github.com/smallbiznis/petlog/pkg/db/option"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type store[T any] struct {
	db *gorm.DB
}

func ProvideStore[T any](db *gorm.DB) Repository[T] {
	return &store[T]{db: db}
}

func (s *store[T]) Find(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error) {
	var rows []*T
	if err := s.query(ctx, query, opts).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *store[T]) FindOne(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error) {
	var row T
	err := s.query(ctx, query, opts).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (s *store[T]) Update(ctx context.Context, id any, changes map[string]any) error {
	if len(changes) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Model(new(T)).Where("id = ?", id).Updates(changes).Error
}

func (s *store[T]) Upsert(ctx context.Context, resource *T, conflict []string, update []string) error {
	cols := make([]clause.Column, 0, len(conflict))
	for _, name := range conflict {
		cols = append(cols, clause.Column{Name: name})
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   cols,
		DoUpdates: clause.AssignmentColumns(update),
	}).Create(resource).Error
}

func (s *store[T]) query(ctx context.Context, filter *T, opts []option.QueryOption) *gorm.DB {
	db := s.db.WithContext(ctx).Where(filter)
	for _, opt := range opts {
		db = opt.Apply(db)
	}
	return db
}
