package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	recordsIngested  metric.Int64Counter
	recordsRejected  metric.Int64Counter
	datasetFetches   metric.Int64Counter
	assessmentRuns   metric.Int64Counter
	exportSnapshots  metric.Int64Counter
	rateLimitAllowed metric.Int64Counter
	rateLimitDenied  metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "sentinel"
	}
	meter := provider.Meter(name)

	recordsIngested, err := meter.Int64Counter("sentinel_records_ingested_total")
	if err != nil {
		return nil, err
	}
	recordsRejected, err := meter.Int64Counter("sentinel_records_rejected_total")
	if err != nil {
		return nil, err
	}
	datasetFetches, err := meter.Int64Counter("sentinel_dataset_fetches_total")
	if err != nil {
		return nil, err
	}
	assessmentRuns, err := meter.Int64Counter("sentinel_assessment_runs_total")
	if err != nil {
		return nil, err
	}
	exportSnapshots, err := meter.Int64Counter("sentinel_export_snapshots_total")
	if err != nil {
		return nil, err
	}
	rateLimitAllowed, err := meter.Int64Counter("sentinel_rate_limit_allowed_total")
	if err != nil {
		return nil, err
	}
	rateLimitDenied, err := meter.Int64Counter("sentinel_rate_limit_denied_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		recordsIngested:  recordsIngested,
		recordsRejected:  recordsRejected,
		datasetFetches:   datasetFetches,
		assessmentRuns:   assessmentRuns,
		exportSnapshots:  exportSnapshots,
		rateLimitAllowed: rateLimitAllowed,
		rateLimitDenied:  rateLimitDenied,
	}, nil
}

// RecordIngested counts normalized records accepted from a source feed.
func (m *Metrics) RecordIngested(ctx context.Context, source string, count int) {
	if m == nil || count <= 0 {
		return
	}
	attrs := FilterAttributes(attribute.String("source", strings.TrimSpace(source)))
	m.recordsIngested.Add(ctx, int64(count), metric.WithAttributes(attrs...))
}

// RecordRejected counts raw records dropped during normalization.
func (m *Metrics) RecordRejected(ctx context.Context, source, reason string, count int) {
	if m == nil || count <= 0 {
		return
	}
	attrs := FilterAttributes(
		attribute.String("source", strings.TrimSpace(source)),
		attribute.String("reason", strings.TrimSpace(reason)),
	)
	m.recordsRejected.Add(ctx, int64(count), metric.WithAttributes(attrs...))
}

// RecordDatasetFetch counts upstream open-data fetches by dataset and outcome.
func (m *Metrics) RecordDatasetFetch(ctx context.Context, dataset, status string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("dataset", strings.TrimSpace(dataset)),
		attribute.String("status", strings.TrimSpace(status)),
	)
	m.datasetFetches.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordAssessmentRun counts scoring runs by trigger and outcome.
func (m *Metrics) RecordAssessmentRun(ctx context.Context, trigger, status string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("trigger", strings.TrimSpace(trigger)),
		attribute.String("status", strings.TrimSpace(status)),
	)
	m.assessmentRuns.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordExportSnapshot counts ranking exports by format.
func (m *Metrics) RecordExportSnapshot(ctx context.Context, format string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("format", strings.TrimSpace(format)))
	m.exportSnapshots.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRateLimitAllowed increments rate limit allow counts.
func (m *Metrics) RecordRateLimitAllowed(ctx context.Context, keyID, endpoint string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("key_id", strings.TrimSpace(keyID)),
		attribute.String("endpoint", strings.TrimSpace(endpoint)),
	)
	m.rateLimitAllowed.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRateLimitDenied increments rate limit deny counts.
func (m *Metrics) RecordRateLimitDenied(ctx context.Context, keyID, endpoint, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("key_id", strings.TrimSpace(keyID)),
		attribute.String("endpoint", strings.TrimSpace(endpoint)),
		attribute.String("reason", strings.TrimSpace(reason)),
	)
	m.rateLimitDenied.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"source":      {},
	"dataset":     {},
	"status":      {},
	"status_code": {},
	"trigger":     {},
	"endpoint":    {},
	"reason":      {},
	"format":      {},
	"key_id":      {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
