package scheduler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/sentinel/internal/clock"
	"github.com/smallbiznis/sentinel/internal/config"
	"github.com/smallbiznis/sentinel/internal/ranking"
	riskdomain "github.com/smallbiznis/sentinel/internal/risk/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Mocks for dependencies

type mockRiskSvc struct {
	mu sync.Mutex

	runRequests []riskdomain.RunRequest
	runResult   *riskdomain.AssessmentRun
	runErr      error

	recoverThresholds []time.Duration
	recovered         int
	recoverErr        error

	pruneRetentions []time.Duration
	pruned          int
	pruneErr        error
}

func (m *mockRiskSvc) RunAssessment(ctx context.Context, req riskdomain.RunRequest) (*riskdomain.AssessmentRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runRequests = append(m.runRequests, req)
	if m.runErr != nil {
		return nil, m.runErr
	}
	if m.runResult != nil {
		return m.runResult, nil
	}
	return &riskdomain.AssessmentRun{Status: riskdomain.RunStatusSucceeded, AssessmentCount: 1}, nil
}

func (m *mockRiskSvc) RecoverStaleRuns(ctx context.Context, olderThan time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recoverThresholds = append(m.recoverThresholds, olderThan)
	return m.recovered, m.recoverErr
}

func (m *mockRiskSvc) PruneRuns(ctx context.Context, retention time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruneRetentions = append(m.pruneRetentions, retention)
	return m.pruned, m.pruneErr
}

func (m *mockRiskSvc) LatestAssessment(context.Context, string) (*riskdomain.RiskAssessment, error) {
	return nil, nil
}

func (m *mockRiskSvc) LatestRun(context.Context) (*riskdomain.AssessmentRun, error) {
	return nil, nil
}

func (m *mockRiskSvc) GetRun(context.Context, string) (*riskdomain.AssessmentRun, error) {
	return nil, riskdomain.ErrRunNotFound
}

func (m *mockRiskSvc) ListRuns(context.Context, riskdomain.ListRunsRequest) ([]*riskdomain.AssessmentRun, error) {
	return nil, nil
}

func (m *mockRiskSvc) HeatRisk(context.Context, string, *float64) (*riskdomain.HeatRisk, error) {
	return nil, nil
}

func (m *mockRiskSvc) Benchmark(context.Context, string) (*riskdomain.Benchmark, error) {
	return nil, nil
}

func (m *mockRiskSvc) BuildingContext(context.Context, string) (*riskdomain.BuildingContext, error) {
	return nil, nil
}

type mockLocker struct {
	mu sync.Mutex

	held   bool
	tryErr error

	tokens   []string
	released []string
}

func (m *mockLocker) TryRefreshLock(ctx context.Context) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tryErr != nil {
		return "", false, m.tryErr
	}
	if m.held {
		return "", false, nil
	}
	token := fmt.Sprintf("lock-%d", len(m.tokens)+1)
	m.tokens = append(m.tokens, token)
	return token, true, nil
}

func (m *mockLocker) ReleaseRefreshLock(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.released = append(m.released, token)
	return nil
}

func newTestScheduler(t *testing.T, risk *mockRiskSvc, cfg Config) (*Scheduler, *clock.FakeClock) {
	t.Helper()

	clk := clock.NewFakeClock(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	sched, err := New(Params{
		Log:     zap.NewNop(),
		RiskSvc: risk,
		Clock:   clk,
		Config:  cfg,
	})
	require.NoError(t, err)
	return sched, clk
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(Params{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestNewAppliesConfigDefaults(t *testing.T) {
	sched, _ := newTestScheduler(t, &mockRiskSvc{}, Config{})

	assert.Equal(t, 6*time.Hour, sched.cfg.RunInterval)
	assert.Equal(t, 90, sched.cfg.WindowDays)
	assert.Equal(t, 30*24*time.Hour, sched.cfg.Retention)
	assert.Equal(t, 2*time.Hour, sched.cfg.StaleRunThreshold)
}

func TestRunOnceDrivesPipeline(t *testing.T) {
	risk := &mockRiskSvc{recovered: 1, pruned: 2}
	sched, _ := newTestScheduler(t, risk, Config{
		WindowDays:        30,
		Retention:         10 * 24 * time.Hour,
		StaleRunThreshold: time.Hour,
	})

	require.NoError(t, sched.RunOnce(context.Background()))

	require.Len(t, risk.runRequests, 1)
	assert.Equal(t, "scheduled", risk.runRequests[0].Trigger)
	assert.Equal(t, 30, risk.runRequests[0].WindowDays)

	require.Len(t, risk.recoverThresholds, 1)
	assert.Equal(t, time.Hour, risk.recoverThresholds[0])

	require.Len(t, risk.pruneRetentions, 1)
	assert.Equal(t, 10*24*time.Hour, risk.pruneRetentions[0])
}

func TestRunOnceHonorsEnabledJobs(t *testing.T) {
	risk := &mockRiskSvc{}
	sched, _ := newTestScheduler(t, risk, Config{EnabledJobs: []string{"refresh_scores"}})

	require.NoError(t, sched.RunOnce(context.Background()))

	assert.Len(t, risk.runRequests, 1)
	assert.Empty(t, risk.recoverThresholds, "recovery not in the enabled set")
	assert.Empty(t, risk.pruneRetentions, "prune not in the enabled set")
}

func TestRunOnceIsRepeatableAcrossTicks(t *testing.T) {
	risk := &mockRiskSvc{}
	sched, clk := newTestScheduler(t, risk, Config{})

	for i := 0; i < 3; i++ {
		require.NoError(t, sched.RunOnce(context.Background()))
		clk.Advance(6 * time.Hour)
	}

	assert.Len(t, risk.runRequests, 3)
	assert.Len(t, risk.recoverThresholds, 3)
}

func TestRefreshDeferredWhenRunInProgress(t *testing.T) {
	risk := &mockRiskSvc{runErr: riskdomain.ErrRunInProgress}
	sched, _ := newTestScheduler(t, risk, Config{})

	err := sched.RunOnce(context.Background())

	require.NoError(t, err, "a refresh racing another run is a skip, not a failure")
	assert.Len(t, risk.runRequests, 1)
}

func TestRefreshSkippedWhenLockHeldElsewhere(t *testing.T) {
	risk := &mockRiskSvc{}
	sched, _ := newTestScheduler(t, risk, Config{})
	sched.limiter = &mockLocker{held: true}

	require.NoError(t, sched.RunOnce(context.Background()))

	assert.Empty(t, risk.runRequests, "held lock must keep the assessment from starting")
}

func TestRefreshReleasesLockAfterRun(t *testing.T) {
	risk := &mockRiskSvc{}
	locker := &mockLocker{}
	sched, _ := newTestScheduler(t, risk, Config{})
	sched.limiter = locker

	require.NoError(t, sched.RunOnce(context.Background()))

	require.Len(t, locker.tokens, 1)
	assert.Equal(t, locker.tokens, locker.released)
	assert.Len(t, risk.runRequests, 1)
}

func TestRefreshReleasesLockOnFailure(t *testing.T) {
	risk := &mockRiskSvc{runErr: errors.New("feed read failed")}
	locker := &mockLocker{}
	sched, _ := newTestScheduler(t, risk, Config{})
	sched.limiter = locker

	err := sched.RunOnce(context.Background())

	require.Error(t, err)
	require.Len(t, locker.tokens, 1)
	assert.Equal(t, locker.tokens, locker.released)
}

func TestRunOnceAggregatesJobErrors(t *testing.T) {
	refreshErr := errors.New("feed read failed")
	risk := &mockRiskSvc{runErr: refreshErr, pruneErr: errors.New("prune failed")}
	sched, _ := newTestScheduler(t, risk, Config{})

	err := sched.RunOnce(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, refreshErr)
	assert.Contains(t, err.Error(), "refresh_scores")
	assert.Contains(t, err.Error(), "prune_runs")
	assert.Len(t, risk.pruneRetentions, 1, "a failed refresh must not stop later jobs")
}

func TestJobDeadlineIsSoftFailure(t *testing.T) {
	risk := &mockRiskSvc{recoverErr: context.DeadlineExceeded}
	sched, _ := newTestScheduler(t, risk, Config{})

	require.NoError(t, sched.RunOnce(context.Background()))
	assert.Len(t, risk.runRequests, 1, "timed out recovery must not stop the refresh")
}

func setupExportHarness(t *testing.T, clk *clock.FakeClock) (*ranking.Service, *gorm.DB, string) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&riskdomain.AssessmentRun{}, &riskdomain.RiskAssessment{}))

	dir := t.TempDir()
	svc := ranking.NewService(ranking.Params{
		DB:      db,
		Log:     zap.NewNop(),
		Config:  config.Config{ExportDir: dir},
		Clock:   clk,
		Scoring: config.NewStaticScoringHolder(config.DefaultScoringConfig()),
	})
	return svc, db, dir
}

func TestExportJobWritesSnapshotArtifacts(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	rankingSvc, db, dir := setupExportHarness(t, clk)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	run := riskdomain.AssessmentRun{
		ID:        node.Generate(),
		Trigger:   "manual",
		Status:    riskdomain.RunStatusSucceeded,
		StartedAt: clk.Now(),
	}
	require.NoError(t, db.Create(&run).Error)
	assessment := riskdomain.RiskAssessment{
		ID:          node.Generate(),
		RunID:       run.ID,
		BBL:         "3012340056",
		Borough:     3,
		RiskScore:   4.5,
		Exposure:    27450,
		FixPriority: riskdomain.PriorityHigh,
	}
	require.NoError(t, db.Create(&assessment).Error)

	sched, err := New(Params{
		Log:        zap.NewNop(),
		RiskSvc:    &mockRiskSvc{},
		Clock:      clk,
		RankingSvc: rankingSvc,
		Config:     Config{EnabledJobs: []string{"export_snapshot"}},
	})
	require.NoError(t, err)

	require.NoError(t, sched.RunOnce(context.Background()))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.NotEmpty(t, entries, "export artifacts written for the succeeded run")
}

func TestExportJobToleratesEmptyDatabase(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	rankingSvc, _, dir := setupExportHarness(t, clk)

	sched, err := New(Params{
		Log:        zap.NewNop(),
		RiskSvc:    &mockRiskSvc{},
		Clock:      clk,
		RankingSvc: rankingSvc,
		Config:     Config{EnabledJobs: []string{"export_snapshot"}},
	})
	require.NoError(t, err)

	require.NoError(t, sched.RunOnce(context.Background()), "no succeeded run yet reads as nothing to export")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
