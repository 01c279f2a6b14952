package repository

import (
	"context"

	"github.com/smallbiznis/petlog/pkg/db/option"
)

// Repository is a generic gorm store for small key/value style tables such
// as system_configs. Domain tables with real query logic get their own
// repository package.
type Repository[T any] interface {
	Find(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error)
	// FindOne returns nil, nil when nothing matches.
	FindOne(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error)
	Update(ctx context.Context, id any, changes map[string]any) error
	// Upsert inserts resource, or overwrites the update columns when a row
	// with the same conflict columns exists.
	Upsert(ctx context.Context, resource *T, conflict []string, update []string) error
}
