package repository

import (
	"context"

	"github.com/smallbiznis/storeledger/pkg/db/option"
	"gorm.io/gorm"
)

// Repository is a thin generic gorm store for one model type.
type Repository[T any] interface {
	WithTrx(tx *gorm.DB) Repository[T]
	Find(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error)
	FindOne(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error)
	Create(ctx context.Context, resource *T) error
	Count(ctx context.Context, query *T) (int64, error)
	BatchCreate(ctx context.Context, resources []*T) error
	// UpsertNewer inserts resource or overwrites the stored row only when the stored
	// version is lower than the incoming one. It reports whether a row was written.
	UpsertNewer(ctx context.Context, resource *T) (bool, error)
}
