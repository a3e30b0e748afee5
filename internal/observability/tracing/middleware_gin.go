package tracing

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/sentinel/internal/observability/context"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// GinMiddleware opens a server span per request, carrying upstream trace
// headers forward and renaming the span to the matched route once routing
// has happened.
func GinMiddleware() gin.HandlerFunc {
	tracer := otel.Tracer("sentinel/http")
	return func(c *gin.Context) {
		ctx := ExtractContext(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		ctx, span := tracer.Start(ctx, "HTTP "+strings.ToUpper(c.Request.Method), trace.WithSpanKind(trace.SpanKindServer))
		ctx = tagRequestID(ctx, span)

		c.Request = c.Request.WithContext(ctx)
		start := time.Now()
		c.Next()

		finishSpan(c, span, start)
	}
}

// tagRequestID mirrors the request ID into span attributes and baggage so
// downstream spans inherit it.
func tagRequestID(ctx context.Context, span trace.Span) context.Context {
	requestID := obscontext.RequestIDFromContext(ctx)
	if requestID == "" {
		return ctx
	}
	span.SetAttributes(attribute.String("request_id", requestID))
	member, err := baggage.NewMember("request_id", requestID)
	if err != nil {
		return ctx
	}
	bag, err := baggage.New(member)
	if err != nil {
		return ctx
	}
	return baggage.ContextWithBaggage(ctx, bag)
}

func finishSpan(c *gin.Context, span trace.Span, start time.Time) {
	route := c.FullPath()
	if route == "" {
		route = "unknown"
	}
	span.SetName("HTTP " + strings.ToUpper(c.Request.Method) + " " + route)

	attrs := []attribute.KeyValue{
		attribute.String("http.method", c.Request.Method),
		attribute.String("http.route", route),
		attribute.Int("http.status_code", c.Writer.Status()),
		attribute.Int64("http.server_duration_ms", time.Since(start).Milliseconds()),
	}
	if bbl := strings.TrimSpace(c.GetString("bbl")); bbl != "" {
		attrs = append(attrs, attribute.String("bbl", bbl))
	}
	span.SetAttributes(SafeAttributes(attrs...)...)

	if c.Writer.Status() >= http.StatusInternalServerError {
		if last := c.Errors.Last(); last != nil {
			if safeErr := SafeError(last.Err); safeErr != nil {
				span.RecordError(safeErr)
			}
		}
		span.SetStatus(codes.Error, "request error")
	}
	span.End()
}
