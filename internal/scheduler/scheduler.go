package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/smallbiznis/sentinel/internal/clock"
	obsmetrics "github.com/smallbiznis/sentinel/internal/observability/metrics"
	"github.com/smallbiznis/sentinel/internal/ranking"
	"github.com/smallbiznis/sentinel/internal/ratelimit"
	riskdomain "github.com/smallbiznis/sentinel/internal/risk/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// ErrInvalidConfig is returned when the scheduler is built without its
// required dependencies.
var ErrInvalidConfig = errors.New("invalid_scheduler_config")

// refreshLocker is the slice of the API limiter the scheduler needs.
type refreshLocker interface {
	TryRefreshLock(ctx context.Context) (string, bool, error)
	ReleaseRefreshLock(ctx context.Context, token string) error
}

type Params struct {
	fx.In

	Log     *zap.Logger
	RiskSvc riskdomain.Service
	Clock   clock.Clock

	RankingSvc *ranking.Service      `optional:"true"`
	Limiter    *ratelimit.APILimiter `optional:"true"`
	Config     Config                `optional:"true"`
}

// Scheduler drives the periodic pipeline: recover stale runs, refresh
// scores (fetch, normalize, score), export the ranked snapshot and prune
// old runs.
type Scheduler struct {
	log        *zap.Logger
	cfg        Config
	clock      clock.Clock
	riskSvc    riskdomain.Service
	rankingSvc *ranking.Service
	limiter    refreshLocker
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.RiskSvc == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	cfg := p.Config.withDefaults()
	return &Scheduler{
		log:        p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:        cfg,
		clock:      p.Clock,
		riskSvc:    p.RiskSvc,
		rankingSvc: p.RankingSvc,
		limiter:    p.Limiter,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := s.ensureJobRun(ctx, name)
	if owner {
		s.logJobStart(ctx, run)
	}
	log := s.logger(ctx).With(
		zap.String("job", name),
		zap.String("run_id", run.runID),
	)
	pipeMetrics := obsmetrics.Pipeline()
	pipeMetrics.IncJobRun(name)

	err := fn(ctx)
	pipeMetrics.ObserveJobDuration(name, time.Since(start))
	if owner {
		if err != nil && run != nil && run.errorCount == 0 {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	// Deadline is a soft failure: the next tick picks the work back up.
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		pipeMetrics.IncJobTimeout(name)
	}
	pipeMetrics.IncJobError(name, err)
	if isTimeout {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name    string
		Enabled bool
		Run     func(context.Context) error
	}{
		{"recover_stale_runs", s.isJobEnabled("recover_stale_runs"), func(ctx context.Context) error {
			return s.runJob(ctx, "recover_stale_runs", 30*time.Second, s.RecoverStaleRunsJob)
		}},
		{"refresh_scores", s.isJobEnabled("refresh_scores"), func(ctx context.Context) error {
			return s.runJob(ctx, "refresh_scores", 30*time.Minute, s.RefreshScoresJob)
		}},
	}

	for _, job := range jobs {
		if job.Enabled {
			err = errors.Join(err, job.Run(parent))
		}
	}

	if s.rankingSvc != nil && s.isJobEnabled("export_snapshot") {
		err = errors.Join(err, s.runJob(parent, "export_snapshot", 2*time.Minute, s.ExportSnapshotJob))
	}

	if s.isJobEnabled("prune_runs") {
		err = errors.Join(err, s.runJob(parent, "prune_runs", 30*time.Second, s.PruneRunsJob))
	}

	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(s.cfg.RunInterval)
	pipeMetrics := obsmetrics.Pipeline()

	for {
		runLag := time.Since(nextRun)
		if runLag > 0 {
			pipeMetrics.ObserveRunLoopLag(runLag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	// If EnabledJobs is empty, all jobs are enabled by default (monolith mode)
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

// RecoverStaleRunsJob marks runs stuck in PENDING or RUNNING as failed so
// a crashed pass does not block the next refresh.
func (s *Scheduler) RecoverStaleRunsJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, "recover_stale_runs")
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	recovered, err := s.riskSvc.RecoverStaleRuns(ctx, s.cfg.StaleRunThreshold)
	if err != nil {
		s.logPipelineError(ctx, run, "scheduler.recovery.failed", "recover_stale_runs", err)
		return err
	}
	run.AddProcessed(recovered)
	if recovered > 0 {
		s.logger(ctx).Warn("stale assessment runs recovered",
			zap.Int("recovered", recovered),
			zap.Duration("older_than", s.cfg.StaleRunThreshold),
		)
	}
	return nil
}

// RefreshScoresJob runs the full pipeline: fetch the configured window
// from every source, normalize, rebuild rollups and persist a scored
// assessment run. A redis mutex keeps concurrent deployments from
// refreshing at the same time; without redis the job runs unlocked.
func (s *Scheduler) RefreshScoresJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, "refresh_scores")
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}
	pipeMetrics := obsmetrics.Pipeline()

	token, ok, err := s.limiter.TryRefreshLock(ctx)
	if err != nil {
		s.logPipelineError(ctx, run, "scheduler.refresh.lock_failed", "refresh_scores", err)
		return err
	}
	if !ok {
		pipeMetrics.IncBatchDeferred("refresh_scores", obsmetrics.PipelineBatchDeferredReasonRunInProgress)
		s.logger(ctx).Info("refresh held by another instance",
			zap.String("job", "refresh_scores"),
		)
		return nil
	}
	defer func() {
		// The lock TTL reclaims the mutex if release fails.
		if releaseErr := s.limiter.ReleaseRefreshLock(ctx, token); releaseErr != nil {
			s.logger(ctx).Warn("refresh lock release failed", zap.Error(releaseErr))
		}
	}()

	assessment, err := s.riskSvc.RunAssessment(ctx, riskdomain.RunRequest{
		Trigger:    "scheduled",
		WindowDays: s.cfg.WindowDays,
	})
	if errors.Is(err, riskdomain.ErrRunInProgress) {
		pipeMetrics.IncBatchDeferred("refresh_scores", obsmetrics.PipelineBatchDeferredReasonRunInProgress)
		s.logger(ctx).Info("assessment run already in progress, skipping refresh")
		return nil
	}
	if err != nil {
		s.logPipelineError(ctx, run, "scheduler.refresh.failed", "refresh_scores", err)
		return err
	}

	run.AddProcessed(assessment.AssessmentCount)
	s.logger(ctx).Info("scheduled refresh completed",
		zap.String("assessment_run_id", assessment.ID.String()),
		zap.Int("assessments", assessment.AssessmentCount),
		zap.Int("accepted_records", assessment.AcceptedRecords),
		zap.Int("rejected_records", assessment.RejectedRecords),
	)
	return nil
}

// ExportSnapshotJob writes the ranked CSV and JSON artifacts for the
// latest succeeded run.
func (s *Scheduler) ExportSnapshotJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, "export_snapshot")
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	snapshot, err := s.rankingSvc.ExportSnapshot(ctx)
	if errors.Is(err, ranking.ErrNoData) {
		s.logger(ctx).Info("no succeeded run to export yet")
		return nil
	}
	if err != nil {
		s.logPipelineError(ctx, run, "scheduler.export.failed", "export_snapshot", err)
		return err
	}
	run.AddProcessed(snapshot.Properties)
	return nil
}

// PruneRunsJob deletes assessment runs older than the retention window.
func (s *Scheduler) PruneRunsJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, "prune_runs")
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	pruned, err := s.riskSvc.PruneRuns(ctx, s.cfg.Retention)
	if err != nil {
		s.logPipelineError(ctx, run, "scheduler.prune.failed", "prune_runs", err)
		return err
	}
	run.AddProcessed(pruned)
	return nil
}
