package option

import (
	"fmt"
	"strings"

	"github.com/smallbiznis/sentinel/pkg/db/pagination"
	"gorm.io/gorm"
)

// QueryOption mutates a gorm statement before execution. Options compose:
// repositories apply them in order on top of the base filter.
type QueryOption interface {
	Apply(*gorm.DB) *gorm.DB
}

type queryOptionFunc func(*gorm.DB) *gorm.DB

func (f queryOptionFunc) Apply(db *gorm.DB) *gorm.DB {
	return f(db)
}

type Operator string

const (
	EQ  Operator = "="
	GT  Operator = ">"
	GTE Operator = ">="
	LT  Operator = "<"
	LTE Operator = "<="
)

type Condition struct {
	Field    string
	Operator Operator
	Value    any
}

func ApplyOperator(c Condition) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB {
		if c.Field == "" || c.Operator == "" {
			return db
		}
		return db.Where(fmt.Sprintf("%s %s ?", c.Field, c.Operator), c.Value)
	})
}

// QuerySortBy sorts by a caller-supplied column, restricted to the Allow set
// so request parameters can never inject arbitrary SQL.
type QuerySortBy struct {
	SortBy  string
	OrderBy string
	Allow   map[string]bool
}

func WithSortBy(q QuerySortBy) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB {
		sortBy := q.SortBy
		if sortBy == "" || !q.Allow[sortBy] {
			sortBy = "created_at"
		}
		orderBy := strings.ToLower(q.OrderBy)
		if orderBy != "asc" {
			orderBy = "desc"
		}
		return db.Order(fmt.Sprintf("%s %s", sortBy, orderBy))
	})
}

func WithQuerySortBy(sortBy, orderBy string, allow map[string]bool) QueryOption {
	return WithSortBy(QuerySortBy{SortBy: sortBy, OrderBy: orderBy, Allow: allow})
}

// ApplyPagination applies keyset pagination: rows strictly older than the
// cursor, fetching one extra row so callers can detect a next page.
func ApplyPagination(p pagination.Pagination) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB {
		pageSize := p.PageSize
		if pageSize <= 0 {
			pageSize = 10
		}
		if pageSize > 250 {
			pageSize = 250
		}

		if p.PageToken != "" {
			cursor, err := pagination.DecodeCursor(p.PageToken)
			if err == nil && cursor.CreatedAt != "" {
				db = db.Where(
					"created_at < ? OR (created_at = ? AND id < ?)",
					cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
				)
			}
		}

		return db.Limit(pageSize + 1)
	})
}
