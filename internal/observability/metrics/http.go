package metrics

import (
	"context"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// HTTPMetrics exposes server-side HTTP instruments.
type HTTPMetrics struct {
	requests metric.Int64Counter
	duration metric.Float64Histogram
}

// NewHTTPMetrics configures the HTTP server instruments.
func NewHTTPMetrics(cfg Config, provider metric.MeterProvider) (*HTTPMetrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "sentinel"
	}
	meter := provider.Meter(name)

	requests, err := meter.Int64Counter("sentinel_http_requests_total")
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("sentinel_http_request_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &HTTPMetrics{requests: requests, duration: duration}, nil
}

// Record observes one completed request. Route must be the matched pattern,
// never the raw path, to keep cardinality bounded.
func (m *HTTPMetrics) Record(ctx context.Context, method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("endpoint", strings.ToUpper(strings.TrimSpace(method))+" "+strings.TrimSpace(route)),
		attribute.String("status_code", strconv.Itoa(status)),
	)
	opt := metric.WithAttributes(attrs...)
	m.requests.Add(ctx, 1, opt)
	m.duration.Record(ctx, elapsed.Seconds(), opt)
}
