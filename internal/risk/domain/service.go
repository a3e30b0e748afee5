package domain

import (
	"context"
	"errors"
	"time"
)

// RunRequest asks for one pipeline execution over a history window.
type RunRequest struct {
	Trigger    string `json:"trigger"`
	WindowDays int    `json:"window_days"`
}

// HeatRisk is the seasonal heat urgency model output for one property.
type HeatRisk struct {
	BBL                   string    `json:"bbl"`
	InSeason              bool      `json:"in_season"`
	SeasonalMultiplier    float64   `json:"seasonal_multiplier"`
	TemperatureMultiplier float64   `json:"temperature_multiplier"`
	ComplaintFactor       float64   `json:"complaint_factor"`
	HeatComplaints        int       `json:"heat_complaints"`
	Urgency               float64   `json:"urgency"`
	Level                 string    `json:"level"`
	DaysToViolation       int       `json:"days_to_violation"`
	AsOf                  time.Time `json:"as_of"`
}

const (
	HeatLevelCritical = "CRITICAL"
	HeatLevelHigh     = "HIGH"
	HeatLevelModerate = "MODERATE"
	HeatLevelLow      = "LOW"
)

// Benchmark places one property's risk score inside its peer cohort.
// Cohort membership requires the same borough, unit count within 30
// percent and year built within 15 years.
type Benchmark struct {
	BBL          string  `json:"bbl"`
	RiskScore    float64 `json:"risk_score"`
	Percentile   float64 `json:"percentile"`
	Urgency      string  `json:"urgency"`
	Comparison   string  `json:"comparison"`
	CohortSize   int     `json:"cohort_size"`
	CohortMean   float64 `json:"cohort_mean"`
	CohortMedian float64 `json:"cohort_median"`
}

// BuildingContext bundles the profile-derived factors behind a
// property's risk narrative: construction era and local enforcement
// intensity. YearEstimated marks a year inferred from the tax block
// instead of a recorded profile.
type BuildingContext struct {
	BBL                   string  `json:"bbl"`
	Address               string  `json:"address,omitempty"`
	Borough               string  `json:"borough"`
	UnitCount             int     `json:"unit_count,omitempty"`
	YearBuilt             int     `json:"year_built"`
	YearEstimated         bool    `json:"year_estimated"`
	AgeFactor             float64 `json:"age_factor"`
	AgeDescription        string  `json:"age_description"`
	CouncilDistrict       string  `json:"council_district,omitempty"`
	EnforcementMultiplier float64 `json:"enforcement_multiplier"`
	DistrictHotspot       bool    `json:"district_hotspot"`
}

// ListRunsRequest filters the run history.
type ListRunsRequest struct {
	Status   RunStatus `form:"status"`
	PageSize int       `form:"page_size,default=20"`
}

type Service interface {
	RunAssessment(context.Context, RunRequest) (*AssessmentRun, error)
	LatestAssessment(ctx context.Context, bbl string) (*RiskAssessment, error)
	LatestRun(ctx context.Context) (*AssessmentRun, error)
	GetRun(ctx context.Context, runID string) (*AssessmentRun, error)
	ListRuns(ctx context.Context, req ListRunsRequest) ([]*AssessmentRun, error)
	HeatRisk(ctx context.Context, bbl string, outdoorTempF *float64) (*HeatRisk, error)
	Benchmark(ctx context.Context, bbl string) (*Benchmark, error)
	BuildingContext(ctx context.Context, bbl string) (*BuildingContext, error)
	RecoverStaleRuns(ctx context.Context, olderThan time.Duration) (int, error)
	PruneRuns(ctx context.Context, retention time.Duration) (int, error)
}

var (
	ErrRunNotFound      = errors.New("run_not_found")
	ErrRunInProgress    = errors.New("run_in_progress")
	ErrInvalidWindow    = errors.New("invalid_window")
	ErrInsufficientData = errors.New("insufficient_peer_data")
)
