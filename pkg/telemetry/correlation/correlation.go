// Package correlation tags a pipeline pass or request with one stable ID
// that rides the context into logs and spans.
package correlation

import (
	"context"

	"github.com/oklog/ulid/v2"
)

type ctxKey struct{}

// EnsureCorrelationID returns a context guaranteed to carry a correlation
// ID, minting one when absent. IDs are ULIDs so log lines for one pass
// sort chronologically.
func EnsureCorrelationID(ctx context.Context) (context.Context, string) {
	if ctx == nil {
		ctx = context.Background()
	}
	if id := FromContext(ctx); id != "" {
		return ctx, id
	}
	id := ulid.Make().String()
	return context.WithValue(ctx, ctxKey{}, id), id
}

// FromContext returns the correlation ID on the context, or "".
func FromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}
