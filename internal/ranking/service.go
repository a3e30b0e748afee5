package ranking

import (
	"context"
	"errors"

	"github.com/smallbiznis/sentinel/internal/clock"
	"github.com/smallbiznis/sentinel/internal/config"
	obsmetrics "github.com/smallbiznis/sentinel/internal/observability/metrics"
	riskdomain "github.com/smallbiznis/sentinel/internal/risk/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultRankingsLimit = 50
	maxRankingsLimit     = 500
)

var (
	// ErrNoData is returned when no succeeded run exists to export from.
	ErrNoData = errors.New("no_ranked_data")
	// ErrNoExports is returned when no export artifact has been written yet.
	ErrNoExports = errors.New("no_exports")
)

// RankingsRequest filters the ranked read. Borough zero means all
// boroughs; Limit zero takes the default page size.
type RankingsRequest struct {
	Limit   int `form:"limit,default=50"`
	Borough int `form:"borough"`
}

// Params collects the service dependencies.
type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Config     config.Config
	Clock      clock.Clock
	Scoring    *config.ScoringHolder
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

// Service serves ranked assessments from the latest succeeded run and
// maintains the export artifacts on disk.
type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	dir        string
	clock      clock.Clock
	scoring    *config.ScoringHolder
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) *Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("ranking.service"),
		dir:        p.Config.ExportDir,
		clock:      p.Clock,
		scoring:    p.Scoring,
		obsMetrics: p.ObsMetrics,
	}
}

// Rankings returns the top assessments of the latest succeeded run,
// ordered by risk. An empty city (no succeeded run yet) reads as an
// empty list, not an error.
func (s *Service) Rankings(ctx context.Context, req RankingsRequest) ([]riskdomain.RiskAssessment, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = defaultRankingsLimit
	}
	if limit > maxRankingsLimit {
		limit = maxRankingsLimit
	}

	ranked, _, err := s.rankedSnapshot(ctx, req.Borough)
	if err != nil {
		return nil, err
	}
	if ranked == nil {
		return []riskdomain.RiskAssessment{}, nil
	}
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, nil
}

// rankedSnapshot loads the latest succeeded run's assessments and ranks
// them. A nil slice with a nil error means no succeeded run exists.
func (s *Service) rankedSnapshot(ctx context.Context, borough int) ([]riskdomain.RiskAssessment, *riskdomain.AssessmentRun, error) {
	var run riskdomain.AssessmentRun
	err := s.db.WithContext(ctx).
		Where("status = ?", riskdomain.RunStatusSucceeded).
		Order("started_at DESC, id DESC").
		First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}

	query := s.db.WithContext(ctx).Where("run_id = ?", run.ID)
	if borough != 0 {
		query = query.Where("borough = ?", borough)
	}

	var assessments []riskdomain.RiskAssessment
	if err := query.Find(&assessments).Error; err != nil {
		return nil, nil, err
	}
	return Rank(assessments), &run, nil
}
