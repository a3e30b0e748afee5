package repository

import (
	"context"

	"github.com/smallbiznis/sentinel/pkg/db/option"
)

// Repository is the gorm-backed persistence surface shared by the ingest,
// risk, and portfolio stores. Filter arguments are partially filled models:
// gorm ignores zero-value fields, so &NormalizedRecord{BBL: b} selects on
// bbl alone.
type Repository[T any] interface {
	Find(ctx context.Context, filter *T, opts ...option.QueryOption) ([]*T, error)
	// FindOne returns the first matching row, or nil with no error when
	// nothing matches.
	FindOne(ctx context.Context, filter *T, opts ...option.QueryOption) (*T, error)
	Create(ctx context.Context, row *T) error
	// Update applies the non-zero fields of patch to the row with the
	// given primary key.
	Update(ctx context.Context, id string, patch any) error
	Count(ctx context.Context, filter *T) (int64, error)
}
