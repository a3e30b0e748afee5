package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/sentinel/internal/bbl"
	"github.com/smallbiznis/sentinel/internal/clock"
	portfoliodomain "github.com/smallbiznis/sentinel/internal/portfolio/domain"
	riskdomain "github.com/smallbiznis/sentinel/internal/risk/domain"
	"github.com/smallbiznis/sentinel/pkg/db"
	"github.com/smallbiznis/sentinel/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// slugAttempts bounds the numbered-suffix probe before falling back to
// an ID-suffixed slug.
const slugAttempts = 25

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  repository.Repository[portfoliodomain.Portfolio]
}

func NewService(p Params) portfoliodomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("portfolio.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  repository.ProvideStore[portfoliodomain.Portfolio](p.DB),
	}
}

func (s *Service) Create(ctx context.Context, req portfoliodomain.CreateRequest) (*portfoliodomain.Portfolio, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, portfoliodomain.ErrInvalidName
	}
	if len(req.BBLs) == 0 {
		return nil, portfoliodomain.ErrNoBuildings
	}

	seen := make(map[string]struct{}, len(req.BBLs))
	properties := make([]string, 0, len(req.BBLs))
	for _, raw := range req.BBLs {
		parsed, err := bbl.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", err, raw)
		}
		if _, ok := seen[parsed.String()]; ok {
			continue
		}
		seen[parsed.String()] = struct{}{}
		properties = append(properties, parsed.String())
	}

	id := s.genID.Generate()
	uniqueSlug, err := s.uniqueSlug(ctx, name, id)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	portfolio := portfoliodomain.Portfolio{
		ID:        id,
		Name:      name,
		Slug:      uniqueSlug,
		Notes:     strings.TrimSpace(req.Notes),
		BBLs:      properties,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, &portfolio); err != nil {
		if !db.IsDuplicateKeyErr(err) {
			return nil, err
		}
		// The slug probe raced another insert. The ID suffix cannot
		// collide, so one retry settles it.
		portfolio.Slug = fmt.Sprintf("%s-%s", slug.Make(name), strings.ToLower(id.String()))
		if err := s.repo.Create(ctx, &portfolio); err != nil {
			return nil, err
		}
	}

	s.log.Info("portfolio created",
		zap.String("slug", portfolio.Slug),
		zap.Int("buildings", len(portfolio.BBLs)),
	)
	return &portfolio, nil
}

func (s *Service) List(ctx context.Context) ([]portfoliodomain.Portfolio, error) {
	var portfolios []portfoliodomain.Portfolio
	if err := s.db.WithContext(ctx).Order("name ASC").Find(&portfolios).Error; err != nil {
		return nil, err
	}
	return portfolios, nil
}

func (s *Service) Get(ctx context.Context, slugID string) (*portfoliodomain.Portfolio, error) {
	trimmed := strings.TrimSpace(slugID)
	if trimmed == "" {
		return nil, portfoliodomain.ErrNotFound
	}

	portfolio, err := s.repo.FindOne(ctx, &portfoliodomain.Portfolio{Slug: trimmed})
	if err != nil {
		return nil, err
	}
	if portfolio == nil {
		return nil, portfoliodomain.ErrNotFound
	}
	return portfolio, nil
}

// RiskSummary aggregates the latest succeeded run's assessments over the
// portfolio's buildings. Without a succeeded run every building reads as
// CLEAN with zero exposure.
func (s *Service) RiskSummary(ctx context.Context, slugID string) (*portfoliodomain.RiskSummary, error) {
	portfolio, err := s.Get(ctx, slugID)
	if err != nil {
		return nil, err
	}

	summary := &portfoliodomain.RiskSummary{
		Slug:       portfolio.Slug,
		Name:       portfolio.Name,
		Buildings:  len(portfolio.BBLs),
		Priorities: make(map[riskdomain.Priority]int),
	}

	assessments, err := s.latestAssessments(ctx, portfolio.BBLs)
	if err != nil {
		return nil, err
	}

	for _, assessment := range assessments {
		summary.ScoredBuildings++
		summary.TotalExposure += assessment.Exposure
		summary.TotalRiskScore += assessment.RiskScore
		summary.Priorities[assessment.FixPriority]++

		if summary.Worst == nil || assessment.RiskScore > summary.Worst.RiskScore {
			summary.Worst = &portfoliodomain.WorstProperty{
				BBL:         assessment.BBL,
				RiskScore:   assessment.RiskScore,
				FixPriority: assessment.FixPriority,
			}
		}
	}

	if unscored := summary.Buildings - summary.ScoredBuildings; unscored > 0 {
		summary.Priorities[riskdomain.PriorityClean] += unscored
	}
	summary.TotalRiskScore = math.Round(summary.TotalRiskScore*100) / 100
	if summary.ScoredBuildings > 0 {
		summary.AverageRiskScore = math.Round(summary.TotalRiskScore/float64(summary.ScoredBuildings)*100) / 100
	}
	return summary, nil
}

func (s *Service) latestAssessments(ctx context.Context, properties []string) ([]riskdomain.RiskAssessment, error) {
	var run riskdomain.AssessmentRun
	err := s.db.WithContext(ctx).
		Where("status = ?", riskdomain.RunStatusSucceeded).
		Order("started_at DESC, id DESC").
		First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var assessments []riskdomain.RiskAssessment
	err = s.db.WithContext(ctx).
		Where("run_id = ? AND bbl IN ?", run.ID, properties).
		Find(&assessments).Error
	if err != nil {
		return nil, err
	}
	return assessments, nil
}

// uniqueSlug probes name, name-2, name-3 and so on, falling back to an
// ID suffix when a name is pathologically popular.
func (s *Service) uniqueSlug(ctx context.Context, name string, id snowflake.ID) (string, error) {
	base := slug.Make(name)

	candidate := base
	for attempt := 2; attempt <= slugAttempts+1; attempt++ {
		count, err := s.repo.Count(ctx, &portfoliodomain.Portfolio{Slug: candidate})
		if err != nil {
			return "", err
		}
		if count == 0 {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, attempt)
	}
	return fmt.Sprintf("%s-%s", base, strings.ToLower(id.String())), nil
}
