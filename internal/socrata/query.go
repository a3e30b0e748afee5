package socrata

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Record is one row as returned by the SODA API. Values are strings for
// scalar columns; location columns may decode as nested objects.
type Record map[string]any

// Field returns the named column as a trimmed string, or empty when the
// column is absent or not scalar.
func (r Record) Field(key string) string {
	v, ok := r[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}

// Query accumulates SoQL parameters for one request.
type Query struct {
	where  []string
	sel    []string
	order  string
	limit  int
	offset int
}

func NewQuery() *Query {
	return &Query{}
}

// Where adds a conjunct to the $where clause.
func (q *Query) Where(clause string, args ...any) *Query {
	if clause == "" {
		return q
	}
	q.where = append(q.where, fmt.Sprintf(clause, args...))
	return q
}

// Since restricts the named date column to values at or after t.
func (q *Query) Since(field string, t time.Time) *Query {
	if field == "" || t.IsZero() {
		return q
	}
	return q.Where("%s >= '%s'", field, t.UTC().Format("2006-01-02T15:04:05"))
}

// BBL restricts the named column to one property identifier.
func (q *Query) BBL(field, bbl string) *Query {
	if field == "" || bbl == "" {
		return q
	}
	return q.Where("%s = '%s'", field, sanitizeLiteral(bbl))
}

func (q *Query) Select(fields ...string) *Query {
	q.sel = append(q.sel, fields...)
	return q
}

func (q *Query) Order(order string) *Query {
	q.order = order
	return q
}

func (q *Query) Limit(limit int) *Query {
	q.limit = limit
	return q
}

func (q *Query) Offset(offset int) *Query {
	q.offset = offset
	return q
}

// Values renders the query as SODA request parameters.
func (q *Query) Values() url.Values {
	values := url.Values{}
	if len(q.where) > 0 {
		values.Set("$where", strings.Join(q.where, " AND "))
	}
	if len(q.sel) > 0 {
		values.Set("$select", strings.Join(q.sel, ","))
	}
	if q.order != "" {
		values.Set("$order", q.order)
	}
	if q.limit > 0 {
		values.Set("$limit", fmt.Sprintf("%d", q.limit))
	}
	if q.offset > 0 {
		values.Set("$offset", fmt.Sprintf("%d", q.offset))
	}
	return values
}

// sanitizeLiteral strips quote characters so caller-supplied identifiers
// cannot break out of a SoQL string literal.
func sanitizeLiteral(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\'' || r == '"' || r == ';' {
			return -1
		}
		return r
	}, s)
}
