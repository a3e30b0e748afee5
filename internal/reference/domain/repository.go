package domain

import "context"

type Repository interface {
	ListBoroughs(ctx context.Context) ([]Borough, error)
	ListDatasets(ctx context.Context) ([]Dataset, error)
}
