package service

import (
	"math"
	"time"

	"github.com/smallbiznis/sentinel/internal/config"
	riskdomain "github.com/smallbiznis/sentinel/internal/risk/domain"
	"github.com/smallbiznis/sentinel/internal/rollup"
)

// scorer turns property rollups into assessments using one config
// snapshot, so every property in a run is scored under the same
// constants even if the config hot-reloads mid-run.
type scorer struct {
	cfg config.ScoringConfig
}

func newScorer(cfg config.ScoringConfig) scorer {
	return scorer{cfg: cfg}
}

// Score computes the weighted risk assessment for one rollup. ID and
// RunID stay zero; the pipeline assigns them when persisting. An
// all-zero rollup is valid and scores 0.0 CLEAN with the borough base
// exposure.
func (s scorer) Score(property *rollup.PropertyRollup, asOf time.Time, coverageDays int) riskdomain.RiskAssessment {
	raw := float64(property.ClassB)*s.cfg.Weights.ClassB +
		float64(property.RelevantComplaints)*s.cfg.Weights.RelevantComplaint +
		float64(property.TotalViolations())*s.cfg.Weights.TotalViolation

	return riskdomain.RiskAssessment{
		BBL:                property.BBL,
		Borough:            property.Borough,
		RiskScore:          math.Round(raw*100) / 100,
		Exposure:           s.exposure(property.Borough),
		FixPriority:        s.priority(property),
		ViolationCount:     property.TotalViolations(),
		OpenViolations:     property.OpenViolations(),
		ClassA:             property.ClassA,
		ClassB:             property.ClassB,
		ClassC:             property.ClassC,
		OpenClassA:         property.OpenClassA,
		OpenClassB:         property.OpenClassB,
		OpenClassC:         property.OpenClassC,
		RelevantComplaints: property.RelevantComplaints,
		DataFreshnessDate:  asOf.UTC().Format("2006-01-02"),
		DataCoverageDays:   coverageDays,
	}
}

// exposure estimates the fine total as the base dollar amount scaled by
// the borough multiplier, truncated to whole dollars.
func (s scorer) exposure(borough int) int64 {
	return int64(float64(s.cfg.BaseExposure) * s.cfg.BoroughMultiplier(borough))
}

// priority applies the fix-priority ladder. Class thresholds use window
// totals; only the MEDIUM tier looks at open violations. The label is
// independent of the numeric score.
func (s scorer) priority(property *rollup.PropertyRollup) riskdomain.Priority {
	switch {
	case property.ClassC > 0:
		return riskdomain.PriorityCritical
	case property.ClassB > s.cfg.Priority.HighClassBOver:
		return riskdomain.PriorityHigh
	case property.OpenViolations() > s.cfg.Priority.MediumOpenOver:
		return riskdomain.PriorityMedium
	case property.TotalViolations() > 0:
		return riskdomain.PriorityLow
	default:
		return riskdomain.PriorityClean
	}
}
