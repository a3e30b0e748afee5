package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	riskdomain "github.com/smallbiznis/sentinel/internal/risk/domain"
	"github.com/smallbiznis/sentinel/internal/socrata"
	"gorm.io/gorm"
)

const (
	pipelineErrorTypeDeadlineExceeded = "deadline_exceeded"
	pipelineErrorTypeSource           = "source"
	pipelineErrorTypeBusinessRule     = "business_rule"
	pipelineErrorTypeDB               = "db"
)

const (
	PipelineErrorTypeDeadlineExceeded = pipelineErrorTypeDeadlineExceeded
	PipelineErrorTypeSource           = pipelineErrorTypeSource
	PipelineErrorTypeBusinessRule     = pipelineErrorTypeBusinessRule
	PipelineErrorTypeDB               = pipelineErrorTypeDB
	PipelineErrorTypeUnknown          = "unknown"
)

const (
	PipelineJobReasonDeadlineExceeded     = "deadline_exceeded"
	PipelineJobReasonSourceUnavailable    = "source_unavailable"
	PipelineJobReasonRateLimited          = "rate_limited"
	PipelineJobReasonDBLockTimeout        = "db_lock_timeout"
	PipelineJobReasonSerializationFailure = "serialization_failure"
	PipelineJobReasonUniqueViolation      = "unique_violation"
	PipelineJobReasonUnknown              = "unknown"

	PipelineBatchDeferredReasonRunInProgress = "run_in_progress"
)

const (
	PipelineStageFetch     = "fetch"
	PipelineStageNormalize = "normalize"
	PipelineStageScore     = "score"
	PipelineStageExport    = "export"
	PipelineStagePrune     = "prune"
	PipelineStageRecovery  = "recovery"
)

const (
	LockResourceAssessmentRun     = "assessment_run"
	LockResourceRawRecordsForWork = "raw_records_for_work"
	LockResourceExportSnapshot    = "export_snapshot"
)

// PipelineMetrics captures ingest and scoring pipeline health signals.
type PipelineMetrics struct {
	jobRuns        *prometheus.CounterVec
	jobDuration    *prometheus.HistogramVec
	jobTimeouts    *prometheus.CounterVec
	jobErrors      *prometheus.CounterVec
	batchProcessed *prometheus.CounterVec
	batchDeferred  *prometheus.CounterVec
	runLoopLag     prometheus.Observer
	runTransitions *prometheus.CounterVec
	stageErrors    *prometheus.CounterVec
	dbLockWait     *prometheus.HistogramVec

	transitionCounts map[string]map[string]prometheus.Counter
	stageErrorCounts map[string]map[string]prometheus.Counter
	lockWaitObserver map[string]prometheus.Observer
}

var (
	pipelineMetricsOnce sync.Once
	pipelineMetrics     *PipelineMetrics
)

// Pipeline returns the singleton pipeline metrics registry.
func Pipeline() *PipelineMetrics {
	return PipelineWithConfig(Config{})
}

// PipelineWithConfig returns the singleton pipeline metrics registry using config labels.
func PipelineWithConfig(cfg Config) *PipelineMetrics {
	pipelineMetricsOnce.Do(func() {
		pipelineMetrics = newPipelineMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return pipelineMetrics
}

// ResetPipelineMetricsForTest resets the pipeline metrics singleton for tests.
func ResetPipelineMetricsForTest() {
	pipelineMetricsOnce = sync.Once{}
	pipelineMetrics = nil
}

func newPipelineMetrics(registerer prometheus.Registerer, cfg Config) *PipelineMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "sentinel"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	jobRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "sentinel_pipeline_job_runs_total",
		Help:        "Pipeline job runs by name.",
		ConstLabels: constLabels,
	}, []string{"job"})
	jobDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "sentinel_pipeline_job_duration_seconds",
		Help:        "Pipeline job latency to protect refresh freshness.",
		Buckets:     []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60, 120, 300, 600, 1800},
		ConstLabels: constLabels,
	}, []string{"job"})
	jobTimeouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "sentinel_pipeline_job_timeouts_total",
		Help:        "Pipeline job timeouts that threaten data freshness.",
		ConstLabels: constLabels,
	}, []string{"job"})
	jobErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "sentinel_pipeline_job_errors_total",
		Help:        "Pipeline job errors by low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"job", "reason"})
	batchProcessed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "sentinel_pipeline_batch_processed_total",
		Help:        "Pipeline batch items processed to gauge ingest throughput.",
		ConstLabels: constLabels,
	}, []string{"job", "resource"})
	batchDeferred := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "sentinel_pipeline_batch_deferred_total",
		Help:        "Pipeline batch deferrals by low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"job", "reason"})
	runLoopLag := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "sentinel_pipeline_runloop_lag_seconds",
		Help:        "Pipeline run loop lag beyond the configured interval.",
		Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		ConstLabels: constLabels,
	})
	runTransitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "sentinel_assessment_run_transition_total",
		Help:        "Assessment run lifecycle transitions to validate scoring health.",
		ConstLabels: constLabels,
	}, []string{"from", "to"})
	stageErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "sentinel_pipeline_stage_error_total",
		Help:        "Pipeline errors by stage for faster incident isolation.",
		ConstLabels: constLabels,
	}, []string{"stage", "error_type"})
	dbLockWait := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "sentinel_pipeline_db_lock_wait_seconds",
		Help:        "Pipeline DB lock wait time for SELECT FOR UPDATE contention.",
		Buckets:     []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		ConstLabels: constLabels,
	}, []string{"resource"})

	registerer.MustRegister(
		jobRuns,
		jobDuration,
		jobTimeouts,
		jobErrors,
		batchProcessed,
		batchDeferred,
		runLoopLag,
		runTransitions,
		stageErrors,
		dbLockWait,
	)

	transitionCounts := map[string]map[string]prometheus.Counter{
		string(riskdomain.RunStatusPending): {
			string(riskdomain.RunStatusRunning): runTransitions.WithLabelValues(
				string(riskdomain.RunStatusPending),
				string(riskdomain.RunStatusRunning),
			),
		},
		string(riskdomain.RunStatusRunning): {
			string(riskdomain.RunStatusSucceeded): runTransitions.WithLabelValues(
				string(riskdomain.RunStatusRunning),
				string(riskdomain.RunStatusSucceeded),
			),
			string(riskdomain.RunStatusFailed): runTransitions.WithLabelValues(
				string(riskdomain.RunStatusRunning),
				string(riskdomain.RunStatusFailed),
			),
		},
	}

	lockWaitObserver := map[string]prometheus.Observer{
		LockResourceAssessmentRun:     dbLockWait.WithLabelValues(LockResourceAssessmentRun),
		LockResourceRawRecordsForWork: dbLockWait.WithLabelValues(LockResourceRawRecordsForWork),
		LockResourceExportSnapshot:    dbLockWait.WithLabelValues(LockResourceExportSnapshot),
	}

	stageErrorCounts := map[string]map[string]prometheus.Counter{}
	errorTypes := []string{
		pipelineErrorTypeDeadlineExceeded,
		pipelineErrorTypeSource,
		pipelineErrorTypeBusinessRule,
		pipelineErrorTypeDB,
	}
	for _, stage := range []string{
		PipelineStageFetch,
		PipelineStageNormalize,
		PipelineStageScore,
		PipelineStageExport,
		PipelineStagePrune,
		PipelineStageRecovery,
	} {
		stageCounters := map[string]prometheus.Counter{}
		for _, errType := range errorTypes {
			stageCounters[errType] = stageErrors.WithLabelValues(stage, errType)
		}
		stageErrorCounts[stage] = stageCounters
	}

	return &PipelineMetrics{
		jobRuns:          jobRuns,
		jobDuration:      jobDuration,
		jobTimeouts:      jobTimeouts,
		jobErrors:        jobErrors,
		batchProcessed:   batchProcessed,
		batchDeferred:    batchDeferred,
		runLoopLag:       runLoopLag,
		runTransitions:   runTransitions,
		stageErrors:      stageErrors,
		dbLockWait:       dbLockWait,
		transitionCounts: transitionCounts,
		stageErrorCounts: stageErrorCounts,
		lockWaitObserver: lockWaitObserver,
	}
}

// IncJobRun increments the run counter for a pipeline job.
func (m *PipelineMetrics) IncJobRun(job string) {
	if m == nil || m.jobRuns == nil {
		return
	}
	m.jobRuns.WithLabelValues(job).Inc()
}

// ObserveJobDuration records pipeline job latency in seconds.
func (m *PipelineMetrics) ObserveJobDuration(job string, duration time.Duration) {
	if m == nil || m.jobDuration == nil {
		return
	}
	m.jobDuration.WithLabelValues(job).Observe(duration.Seconds())
}

// IncJobTimeout increments the timeout counter for the pipeline job.
func (m *PipelineMetrics) IncJobTimeout(job string) {
	if m == nil || m.jobTimeouts == nil {
		return
	}
	m.jobTimeouts.WithLabelValues(job).Inc()
}

// IncJobError increments the pipeline job error counter with classification.
func (m *PipelineMetrics) IncJobError(job string, err error) {
	if m == nil || err == nil || m.jobErrors == nil {
		return
	}
	m.jobErrors.WithLabelValues(job, ClassifyPipelineJobReason(err)).Inc()
}

// AddBatchProcessed increments the batch processed counter for a resource by count.
func (m *PipelineMetrics) AddBatchProcessed(job, resource string, count int) {
	if m == nil || count <= 0 || m.batchProcessed == nil {
		return
	}
	m.batchProcessed.WithLabelValues(job, resource).Add(float64(count))
}

// IncBatchDeferred increments the batch deferred counter for a job and reason.
func (m *PipelineMetrics) IncBatchDeferred(job, reason string) {
	if m == nil || m.batchDeferred == nil {
		return
	}
	m.batchDeferred.WithLabelValues(job, reason).Inc()
}

// ObserveRunLoopLag records lag between the scheduled tick and actual run start.
func (m *PipelineMetrics) ObserveRunLoopLag(duration time.Duration) {
	if m == nil || m.runLoopLag == nil {
		return
	}
	lag := duration
	if lag < 0 {
		lag = 0
	}
	m.runLoopLag.Observe(lag.Seconds())
}

// IncRunTransition increments assessment run transition counters.
func (m *PipelineMetrics) IncRunTransition(from, to string) {
	if m == nil {
		return
	}
	if toCounters, ok := m.transitionCounts[from]; ok {
		if counter, ok := toCounters[to]; ok {
			counter.Inc()
			return
		}
	}
	m.runTransitions.WithLabelValues(from, to).Inc()
}

// IncStageError increments pipeline errors by stage and type.
func (m *PipelineMetrics) IncStageError(stage string, err error) {
	if m == nil || err == nil {
		return
	}
	errorType := classifyPipelineError(err)
	if stageCounters, ok := m.stageErrorCounts[stage]; ok {
		if counter, ok := stageCounters[errorType]; ok {
			counter.Inc()
			return
		}
	}
	m.stageErrors.WithLabelValues(stage, errorType).Inc()
}

// ObserveDBLockWait records lock wait time for SELECT FOR UPDATE work.
func (m *PipelineMetrics) ObserveDBLockWait(resource string, duration time.Duration) {
	if m == nil {
		return
	}
	if observer, ok := m.lockWaitObserver[resource]; ok {
		observer.Observe(duration.Seconds())
		return
	}
	m.dbLockWait.WithLabelValues(resource).Observe(duration.Seconds())
}

func classifyPipelineError(err error) string {
	if err == nil {
		return pipelineErrorTypeBusinessRule
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return pipelineErrorTypeDeadlineExceeded
	}
	if isSourceError(err) {
		return pipelineErrorTypeSource
	}
	if isDBError(err) {
		return pipelineErrorTypeDB
	}
	return pipelineErrorTypeBusinessRule
}

// ClassifyPipelineErrorType returns a low-cardinality error type for logging.
func ClassifyPipelineErrorType(err error) string {
	if err == nil {
		return PipelineErrorTypeUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return PipelineErrorTypeDeadlineExceeded
	}
	if isSourceError(err) {
		return PipelineErrorTypeSource
	}
	if isDBError(err) {
		return PipelineErrorTypeDB
	}
	return PipelineErrorTypeBusinessRule
}

// IsPipelineErrorRetryable reports whether the pipeline error should be retried.
func IsPipelineErrorRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	if isSourceError(err) {
		return true
	}
	return isDBError(err)
}

// ClassifyPipelineJobReason maps pipeline job errors to low-cardinality reasons.
func ClassifyPipelineJobReason(err error) string {
	if err == nil {
		return PipelineJobReasonUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return PipelineJobReasonDeadlineExceeded
	}
	if errors.Is(err, socrata.ErrSourceUnavailable) {
		return PipelineJobReasonSourceUnavailable
	}
	if errors.Is(err, socrata.ErrRateLimited) {
		return PipelineJobReasonRateLimited
	}
	if isDBLockTimeout(err) {
		return PipelineJobReasonDBLockTimeout
	}
	if isSerializationFailure(err) {
		return PipelineJobReasonSerializationFailure
	}
	if isUniqueViolation(err) {
		return PipelineJobReasonUniqueViolation
	}
	return PipelineJobReasonUnknown
}

func isDBLockTimeout(err error) bool {
	return hasPGCode(err, "55P03")
}

func isSerializationFailure(err error) bool {
	return hasPGCode(err, "40001")
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return hasPGCode(err, "23505")
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}

func isSourceError(err error) bool {
	return errors.Is(err, socrata.ErrSourceUnavailable) || errors.Is(err, socrata.ErrRateLimited)
}

func isDBError(err error) bool {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false
	}
	if errors.Is(err, gorm.ErrInvalidDB) ||
		errors.Is(err, gorm.ErrInvalidTransaction) ||
		errors.Is(err, gorm.ErrInvalidField) ||
		errors.Is(err, gorm.ErrInvalidData) ||
		errors.Is(err, gorm.ErrMissingWhereClause) ||
		errors.Is(err, gorm.ErrUnsupportedDriver) ||
		errors.Is(err, gorm.ErrRegistered) ||
		errors.Is(err, gorm.ErrInvalidValue) ||
		errors.Is(err, gorm.ErrNotImplemented) ||
		errors.Is(err, gorm.ErrDryRunModeUnsupported) ||
		errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr)
}
