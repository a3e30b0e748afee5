// Package service implements the risk scoring pipeline and the read
// APIs over persisted assessment runs.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/sentinel/internal/bbl"
	"github.com/smallbiznis/sentinel/internal/cache"
	"github.com/smallbiznis/sentinel/internal/clock"
	"github.com/smallbiznis/sentinel/internal/config"
	ingestdomain "github.com/smallbiznis/sentinel/internal/ingest/domain"
	obsmetrics "github.com/smallbiznis/sentinel/internal/observability/metrics"
	riskdomain "github.com/smallbiznis/sentinel/internal/risk/domain"
	"github.com/smallbiznis/sentinel/internal/rollup"
	"github.com/smallbiznis/sentinel/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	maxWindowDays = 365

	assessmentBatchSize = 500

	defaultListRunsPageSize = 20
	maxListRunsPageSize     = 100
)

type ServiceParam struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Ingest     ingestdomain.Service
	Rollups    *rollup.Service
	Scoring    *config.ScoringHolder
	Resolver   cache.RiskResolverCache
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID      *snowflake.Node
	clock      clock.Clock
	ingest     ingestdomain.Service
	rollups    *rollup.Service
	scoring    *config.ScoringHolder
	resolver   cache.RiskResolverCache
	obsMetrics *obsmetrics.Metrics

	runRepo     repository.Repository[riskdomain.AssessmentRun]
	profileRepo repository.Repository[riskdomain.BuildingProfile]
}

func NewService(p ServiceParam) riskdomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("risk.service"),

		genID:      p.GenID,
		clock:      p.Clock,
		ingest:     p.Ingest,
		rollups:    p.Rollups,
		scoring:    p.Scoring,
		resolver:   p.Resolver,
		obsMetrics: p.ObsMetrics,

		runRepo:     repository.ProvideStore[riskdomain.AssessmentRun](p.DB),
		profileRepo: repository.ProvideStore[riskdomain.BuildingProfile](p.DB),
	}
}

// RunAssessment executes one full pipeline pass: sync the feeds, rebuild
// rollups, score every property and replace the run's snapshot inside a
// transaction. Partial feed failures degrade to whatever landed; only a
// dead store or a fully failed sync fails the run. The RUNNING guard is
// best effort, the scheduler's refresh mutex is the real lock.
func (s *Service) RunAssessment(ctx context.Context, req riskdomain.RunRequest) (*riskdomain.AssessmentRun, error) {
	if req.WindowDays < 0 || req.WindowDays > maxWindowDays {
		return nil, riskdomain.ErrInvalidWindow
	}
	trigger := strings.TrimSpace(req.Trigger)
	if trigger == "" {
		trigger = "manual"
	}

	active, err := s.latestRunByStatus(ctx, riskdomain.RunStatusRunning)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, riskdomain.ErrRunInProgress
	}

	now := s.clock.Now()
	run := &riskdomain.AssessmentRun{
		ID:         s.genID.Generate(),
		Trigger:    trigger,
		Status:     riskdomain.RunStatusPending,
		WindowDays: req.WindowDays,
		StartedAt:  now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.runRepo.Create(ctx, run); err != nil {
		return nil, err
	}

	s.log.Info("assessment run started",
		zap.String("run_id", run.ID.String()),
		zap.String("trigger", trigger),
		zap.Int("window_days", req.WindowDays),
	)

	run.Status = riskdomain.RunStatusRunning
	run.UpdatedAt = s.clock.Now()
	if err := s.runRepo.Update(ctx, run.ID.String(), run); err != nil {
		return nil, err
	}

	sync, syncErr := s.ingest.SyncSources(ctx, ingestdomain.SyncRequest{WindowDays: req.WindowDays})
	if sync == nil {
		return s.failRun(ctx, run, syncErr)
	}
	if syncErr != nil {
		s.log.Warn("sync completed with feed errors", zap.String("run_id", run.ID.String()), zap.Error(syncErr))
		run.Error = syncErr.Error()
	}
	run.WindowDays = sync.WindowDays
	run.FetchedRecords = sync.Fetched
	run.AcceptedRecords = sync.Accepted
	run.RejectedRecords = sync.Rejected

	rollups, err := s.rollups.BuildAll(ctx)
	if err != nil {
		return s.failRun(ctx, run, err)
	}

	asOf := s.clock.Now()
	score := newScorer(s.scoring.Get())
	assessments := make([]riskdomain.RiskAssessment, 0, len(rollups))
	for _, property := range rollups {
		assessments = append(assessments, score.Score(property, asOf, sync.WindowDays))
	}
	sort.Slice(assessments, func(i, j int) bool { return assessments[i].BBL < assessments[j].BBL })
	for i := range assessments {
		assessments[i].ID = s.genID.Generate()
		assessments[i].RunID = run.ID
		assessments[i].CreatedAt = asOf
	}

	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Replace, never append: a retried run lands exactly one
		// assessment per property.
		if err := tx.Where("run_id = ?", run.ID).Delete(&riskdomain.RiskAssessment{}).Error; err != nil {
			return err
		}
		if len(assessments) == 0 {
			return nil
		}
		return tx.CreateInBatches(&assessments, assessmentBatchSize).Error
	}); err != nil {
		return s.failRun(ctx, run, err)
	}

	completed := s.clock.Now()
	run.Status = riskdomain.RunStatusSucceeded
	run.AssessmentCount = len(assessments)
	run.Checksum = buildChecksum(assessments)
	run.CompletedAt = &completed
	run.UpdatedAt = completed
	if err := s.runRepo.Update(ctx, run.ID.String(), run); err != nil {
		return nil, err
	}

	s.resolver.PurgeAssessments()
	s.obsMetrics.RecordAssessmentRun(ctx, trigger, strings.ToLower(string(run.Status)))

	s.log.Info("assessment run completed",
		zap.String("run_id", run.ID.String()),
		zap.Int("assessments", run.AssessmentCount),
		zap.Int("accepted_records", run.AcceptedRecords),
		zap.String("checksum", run.Checksum),
	)

	return run, nil
}

// LatestAssessment returns the newest persisted assessment for a BBL.
// Properties absent from the last snapshot are scored live from their
// current rollup, so a valid BBL with no history reads as a zero-count
// CLEAN assessment rather than not found.
func (s *Service) LatestAssessment(ctx context.Context, rawBBL string) (*riskdomain.RiskAssessment, error) {
	property, err := bbl.Parse(rawBBL)
	if err != nil {
		return nil, ingestdomain.ErrInvalidBBL
	}

	if cached, ok := s.resolver.GetLatestAssessment(property.String()); ok {
		return &cached, nil
	}

	run, err := s.latestRunByStatus(ctx, riskdomain.RunStatusSucceeded)
	if err != nil {
		return nil, err
	}
	if run != nil {
		var assessment riskdomain.RiskAssessment
		err := s.db.WithContext(ctx).
			Where("run_id = ? AND bbl = ?", run.ID, property.String()).
			First(&assessment).Error
		switch {
		case err == nil:
			s.resolver.SetLatestAssessment(property.String(), assessment)
			return &assessment, nil
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return nil, err
		}
	}

	propertyRollup, err := s.rollups.BuildOne(ctx, property)
	if err != nil {
		return nil, err
	}
	coverage := 0
	if run != nil {
		coverage = run.WindowDays
	}
	live := newScorer(s.scoring.Get()).Score(propertyRollup, s.clock.Now(), coverage)
	return &live, nil
}

func (s *Service) LatestRun(ctx context.Context) (*riskdomain.AssessmentRun, error) {
	if cached, ok := s.resolver.GetLatestRun(); ok {
		return &cached, nil
	}

	var run riskdomain.AssessmentRun
	err := s.db.WithContext(ctx).Order("started_at DESC, id DESC").First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, riskdomain.ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}

	s.resolver.SetLatestRun(run)
	return &run, nil
}

func (s *Service) GetRun(ctx context.Context, runID string) (*riskdomain.AssessmentRun, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(runID))
	if err != nil {
		return nil, riskdomain.ErrRunNotFound
	}

	run, err := s.runRepo.FindOne(ctx, &riskdomain.AssessmentRun{ID: id})
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, riskdomain.ErrRunNotFound
	}
	return run, nil
}

func (s *Service) ListRuns(ctx context.Context, req riskdomain.ListRunsRequest) ([]*riskdomain.AssessmentRun, error) {
	size := req.PageSize
	if size <= 0 {
		size = defaultListRunsPageSize
	}
	if size > maxListRunsPageSize {
		size = maxListRunsPageSize
	}

	stmt := s.db.WithContext(ctx).Order("started_at DESC, id DESC").Limit(size)
	if req.Status != "" {
		stmt = stmt.Where("status = ?", req.Status)
	}

	var runs []*riskdomain.AssessmentRun
	if err := stmt.Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

// BuildingContext resolves the construction-era and enforcement factors
// for one property. A missing profile falls back to the tax-block year
// heuristic and the borough enforcement baseline.
func (s *Service) BuildingContext(ctx context.Context, rawBBL string) (*riskdomain.BuildingContext, error) {
	property, err := bbl.Parse(rawBBL)
	if err != nil {
		return nil, ingestdomain.ErrInvalidBBL
	}

	profile, err := s.buildingProfile(ctx, property.String())
	if err != nil {
		return nil, err
	}

	out := &riskdomain.BuildingContext{
		BBL:     property.String(),
		Borough: property.BoroughName(),
	}
	if profile != nil {
		out.Address = profile.Address
		out.UnitCount = profile.UnitCount
		out.YearBuilt = profile.YearBuilt
		out.CouncilDistrict = profile.CouncilDistrict
	}
	if out.YearBuilt == 0 {
		out.YearBuilt = property.EstimatedYearBuilt()
		out.YearEstimated = true
	}

	cfg := s.scoring.Get()
	out.AgeFactor, out.AgeDescription = ageFactor(cfg.Age, out.YearBuilt, s.clock.Now())
	out.EnforcementMultiplier, out.DistrictHotspot = enforcementMultiplier(cfg, out.Borough, out.CouncilDistrict)
	return out, nil
}

// RecoverStaleRuns marks runs stuck in PENDING or RUNNING beyond the
// cutoff as failed so a crashed refresh never blocks the next one.
func (s *Service) RecoverStaleRuns(ctx context.Context, olderThan time.Duration) (int, error) {
	now := s.clock.Now()
	cutoff := now.Add(-olderThan)

	res := s.db.WithContext(ctx).Model(&riskdomain.AssessmentRun{}).
		Where("status IN ? AND started_at < ?",
			[]riskdomain.RunStatus{riskdomain.RunStatusPending, riskdomain.RunStatusRunning}, cutoff).
		Updates(map[string]interface{}{
			"status":       riskdomain.RunStatusFailed,
			"error":        "abandoned_after_restart",
			"completed_at": now,
			"updated_at":   now,
		})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		s.log.Warn("recovered stale runs",
			zap.Int64("count", res.RowsAffected),
			zap.Time("cutoff", cutoff),
		)
	}
	return int(res.RowsAffected), nil
}

// PruneRuns deletes runs older than the retention window along with
// their assessments. The latest succeeded run is always kept so reads
// never lose the current snapshot.
func (s *Service) PruneRuns(ctx context.Context, retention time.Duration) (int, error) {
	cutoff := s.clock.Now().Add(-retention)

	keep, err := s.latestRunByStatus(ctx, riskdomain.RunStatusSucceeded)
	if err != nil {
		return 0, err
	}

	pruned := 0
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		stmt := tx.Where("started_at < ?", cutoff)
		if keep != nil {
			stmt = stmt.Where("id <> ?", keep.ID)
		}
		var stale []riskdomain.AssessmentRun
		if err := stmt.Find(&stale).Error; err != nil {
			return err
		}
		if len(stale) == 0 {
			return nil
		}

		ids := make([]snowflake.ID, 0, len(stale))
		for _, run := range stale {
			ids = append(ids, run.ID)
		}
		if err := tx.Where("run_id IN ?", ids).Delete(&riskdomain.RiskAssessment{}).Error; err != nil {
			return err
		}
		if err := tx.Where("id IN ?", ids).Delete(&riskdomain.AssessmentRun{}).Error; err != nil {
			return err
		}
		pruned = len(stale)
		return nil
	})
	if err != nil {
		return 0, err
	}

	if pruned > 0 {
		s.log.Info("pruned assessment runs", zap.Int("count", pruned), zap.Time("cutoff", cutoff))
	}
	return pruned, nil
}

func (s *Service) failRun(ctx context.Context, run *riskdomain.AssessmentRun, cause error) (*riskdomain.AssessmentRun, error) {
	now := s.clock.Now()
	run.Status = riskdomain.RunStatusFailed
	run.Error = cause.Error()
	run.CompletedAt = &now
	run.UpdatedAt = now
	if err := s.runRepo.Update(ctx, run.ID.String(), run); err != nil {
		s.log.Error("marking run failed", zap.String("run_id", run.ID.String()), zap.Error(err))
	}

	s.obsMetrics.RecordAssessmentRun(ctx, run.Trigger, "failed")
	s.log.Error("assessment run failed", zap.String("run_id", run.ID.String()), zap.Error(cause))
	return run, cause
}

func (s *Service) latestRunByStatus(ctx context.Context, status riskdomain.RunStatus) (*riskdomain.AssessmentRun, error) {
	var run riskdomain.AssessmentRun
	err := s.db.WithContext(ctx).
		Where("status = ?", status).
		Order("started_at DESC, id DESC").
		First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (s *Service) buildingProfile(ctx context.Context, bblKey string) (*riskdomain.BuildingProfile, error) {
	if cached, ok := s.resolver.GetProfile(bblKey); ok {
		return &cached, nil
	}

	profile, err := s.profileRepo.FindOne(ctx, &riskdomain.BuildingProfile{BBL: bblKey})
	if err != nil {
		return nil, err
	}
	if profile != nil {
		s.resolver.SetProfile(bblKey, *profile)
	}
	return profile, nil
}

// buildChecksum hashes the ordered assessment rows so reruns over the
// same records can be proven identical in content even though their row
// IDs differ.
func buildChecksum(assessments []riskdomain.RiskAssessment) string {
	var payload strings.Builder
	for _, a := range assessments {
		fmt.Fprintf(&payload, "%s|%d|%.2f|%d|%s|%d|%d|%d|%d|%d|%d|%d|%d|%d|%s|%d\n",
			a.BBL,
			a.Borough,
			a.RiskScore,
			a.Exposure,
			a.FixPriority,
			a.ViolationCount,
			a.OpenViolations,
			a.ClassA,
			a.ClassB,
			a.ClassC,
			a.OpenClassA,
			a.OpenClassB,
			a.OpenClassC,
			a.RelevantComplaints,
			a.DataFreshnessDate,
			a.DataCoverageDays,
		)
	}
	sum := sha256.Sum256([]byte(payload.String()))
	return hex.EncodeToString(sum[:])
}
