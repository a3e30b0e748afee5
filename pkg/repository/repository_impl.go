package repository

import (
	"context"
	"errors"

	"github.com/smallbiznis/sentinel/pkg/db/option"
	"gorm.io/gorm"
)

type gormStore[T any] struct {
	db *gorm.DB
}

// ProvideStore binds a Repository for one model to the shared handle.
func ProvideStore[T any](db *gorm.DB) Repository[T] {
	return &gormStore[T]{db: db}
}

func (s *gormStore[T]) Find(ctx context.Context, filter *T, opts ...option.QueryOption) ([]*T, error) {
	var rows []*T
	if err := s.scoped(ctx, filter, opts).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *gormStore[T]) FindOne(ctx context.Context, filter *T, opts ...option.QueryOption) (*T, error) {
	var row T
	err := s.scoped(ctx, filter, opts).First(&row).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, nil
	case err != nil:
		return nil, err
	}
	return &row, nil
}

func (s *gormStore[T]) Create(ctx context.Context, row *T) error {
	return s.db.WithContext(ctx).Create(row).Error
}

func (s *gormStore[T]) Update(ctx context.Context, id string, patch any) error {
	return s.db.WithContext(ctx).Model(new(T)).Where("id = ?", id).Updates(patch).Error
}

func (s *gormStore[T]) Count(ctx context.Context, filter *T) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(filter).Where(filter).Count(&n).Error
	return n, err
}

// scoped builds the base statement: context, filter, then options in order.
func (s *gormStore[T]) scoped(ctx context.Context, filter *T, opts []option.QueryOption) *gorm.DB {
	stmt := s.db.WithContext(ctx).Where(filter)
	for _, opt := range opts {
		stmt = opt.Apply(stmt)
	}
	return stmt
}
