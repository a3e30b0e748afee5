// Package telemetry carries tracing helpers shared by every deployable.
package telemetry

import (
	"context"

	"github.com/smallbiznis/sentinel/pkg/telemetry/correlation"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// CorrelationSpanProcessor stamps the context correlation ID onto every
// span at start so traces join up with the pipeline log lines.
type CorrelationSpanProcessor struct{}

func (p CorrelationSpanProcessor) OnStart(ctx context.Context, s sdktrace.ReadWriteSpan) {
	_, cid := correlation.EnsureCorrelationID(ctx)
	s.SetAttributes(attribute.String("correlation_id", cid))
}

func (p CorrelationSpanProcessor) OnEnd(sdktrace.ReadOnlySpan) {}

func (p CorrelationSpanProcessor) Shutdown(context.Context) error { return nil }

func (p CorrelationSpanProcessor) ForceFlush(context.Context) error { return nil }
