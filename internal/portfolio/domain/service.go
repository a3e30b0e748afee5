package domain

import (
	"context"
	"errors"

	riskdomain "github.com/smallbiznis/sentinel/internal/risk/domain"
)

type CreateRequest struct {
	Name  string   `json:"name"`
	Notes string   `json:"notes"`
	BBLs  []string `json:"bbls"`
}

// WorstProperty is the highest-risk building in a portfolio.
type WorstProperty struct {
	BBL         string              `json:"bbl"`
	RiskScore   float64             `json:"risk_score"`
	FixPriority riskdomain.Priority `json:"fix_priority"`
}

// RiskSummary aggregates the latest assessments across one portfolio.
// Properties without an assessment in the latest run count as CLEAN.
type RiskSummary struct {
	Slug             string                      `json:"slug"`
	Name             string                      `json:"name"`
	Buildings        int                         `json:"buildings"`
	ScoredBuildings  int                         `json:"scored_buildings"`
	TotalExposure    int64                       `json:"total_exposure"`
	TotalRiskScore   float64                     `json:"total_risk_score"`
	AverageRiskScore float64                     `json:"average_risk_score"`
	Priorities       map[riskdomain.Priority]int `json:"priorities"`
	Worst            *WorstProperty              `json:"worst_property,omitempty"`
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Portfolio, error)
	List(ctx context.Context) ([]Portfolio, error)
	Get(ctx context.Context, slug string) (*Portfolio, error)
	RiskSummary(ctx context.Context, slug string) (*RiskSummary, error)
}

var (
	ErrInvalidName = errors.New("invalid_name")
	ErrNoBuildings = errors.New("no_buildings")
	ErrNotFound    = errors.New("portfolio_not_found")
)
