package metrics

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/smallbiznis/sentinel/internal/socrata"
	"gorm.io/gorm"
)

func TestClassifyPipelineJobReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "deadline",
			err:  context.DeadlineExceeded,
			want: PipelineJobReasonDeadlineExceeded,
		},
		{
			name: "source_unavailable",
			err:  socrata.ErrSourceUnavailable,
			want: PipelineJobReasonSourceUnavailable,
		},
		{
			name: "rate_limited",
			err:  socrata.ErrRateLimited,
			want: PipelineJobReasonRateLimited,
		},
		{
			name: "db_lock_timeout",
			err:  &pgconn.PgError{Code: "55P03"},
			want: PipelineJobReasonDBLockTimeout,
		},
		{
			name: "serialization_failure",
			err:  &pgconn.PgError{Code: "40001"},
			want: PipelineJobReasonSerializationFailure,
		},
		{
			name: "unique_violation",
			err:  gorm.ErrDuplicatedKey,
			want: PipelineJobReasonUniqueViolation,
		},
		{
			name: "unknown",
			err:  errors.New("boom"),
			want: PipelineJobReasonUnknown,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyPipelineJobReason(tc.err); got != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, got)
			}
		})
	}
}

func TestAddBatchProcessed(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := newPipelineMetrics(registry, Config{
		ServiceName: "sentinel",
		Environment: "test",
	})

	metrics.AddBatchProcessed("sync_sources", "normalized_records", 3)

	got := testutil.ToFloat64(metrics.batchProcessed.WithLabelValues("sync_sources", "normalized_records"))
	if got != 3 {
		t.Fatalf("expected processed count 3, got %v", got)
	}
}

func TestIsPipelineErrorRetryable(t *testing.T) {
	if !IsPipelineErrorRetryable(socrata.ErrSourceUnavailable) {
		t.Fatalf("expected source outages to be retryable")
	}
	if !IsPipelineErrorRetryable(&pgconn.PgError{Code: "40001"}) {
		t.Fatalf("expected serialization failures to be retryable")
	}
	if IsPipelineErrorRetryable(errors.New("bad input")) {
		t.Fatalf("expected business rule errors to be terminal")
	}
}
