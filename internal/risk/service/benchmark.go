package service

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/sentinel/internal/bbl"
	ingestdomain "github.com/smallbiznis/sentinel/internal/ingest/domain"
	riskdomain "github.com/smallbiznis/sentinel/internal/risk/domain"
	"go.uber.org/zap"
)

const (
	peerUnitRatioMin = 0.7
	peerUnitRatioMax = 1.3
	peerYearRange    = 15
)

type peerRow struct {
	BBL       string  `gorm:"column:bbl"`
	RiskScore float64 `gorm:"column:risk_score"`
	UnitCount int     `gorm:"column:unit_count"`
	YearBuilt int     `gorm:"column:year_built"`
}

// Benchmark places a property's latest risk score inside a cohort of
// similar buildings scored in the same run. Cohort membership requires
// the same borough; unit count and construction year only narrow the
// cohort when both sides have them on record.
func (s *Service) Benchmark(ctx context.Context, rawBBL string) (*riskdomain.Benchmark, error) {
	property, err := bbl.Parse(rawBBL)
	if err != nil {
		return nil, ingestdomain.ErrInvalidBBL
	}

	run, err := s.latestRunByStatus(ctx, riskdomain.RunStatusSucceeded)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, riskdomain.ErrInsufficientData
	}

	target, err := s.LatestAssessment(ctx, property.String())
	if err != nil {
		return nil, err
	}

	targetUnits, targetYear := 0, 0
	if profile, err := s.buildingProfile(ctx, property.String()); err != nil {
		return nil, err
	} else if profile != nil {
		targetUnits, targetYear = profile.UnitCount, profile.YearBuilt
	}

	rows, err := s.cohortRows(ctx, run.ID, target.Borough, property.String())
	if err != nil {
		return nil, err
	}

	peers := make([]float64, 0, len(rows))
	for _, row := range rows {
		if !similarBuilding(row, targetUnits, targetYear) {
			continue
		}
		peers = append(peers, row.RiskScore)
	}
	if len(peers) == 0 {
		return nil, riskdomain.ErrInsufficientData
	}

	below := 0
	for _, score := range peers {
		if score < target.RiskScore {
			below++
		}
	}
	percentile := float64(below) / float64(len(peers)) * 100
	comparison, urgency := peerStanding(percentile)

	s.log.Debug("benchmark computed",
		zap.String("bbl", property.String()),
		zap.Int("cohort", len(peers)),
		zap.Float64("percentile", percentile),
	)

	return &riskdomain.Benchmark{
		BBL:          property.String(),
		RiskScore:    math.Round(target.RiskScore*10) / 10,
		Percentile:   math.Round(percentile),
		Urgency:      urgency,
		Comparison:   comparison,
		CohortSize:   len(peers),
		CohortMean:   math.Round(mean(peers)*10) / 10,
		CohortMedian: math.Round(median(peers)*10) / 10,
	}, nil
}

func (s *Service) cohortRows(ctx context.Context, runID snowflake.ID, borough int, selfBBL string) ([]peerRow, error) {
	var rows []peerRow
	err := s.db.WithContext(ctx).Raw(
		`SELECT a.bbl,
		        a.risk_score,
		        COALESCE(p.unit_count, 0) AS unit_count,
		        COALESCE(p.year_built, 0) AS year_built
		 FROM risk_assessments a
		 LEFT JOIN building_profiles p ON p.bbl = a.bbl
		 WHERE a.run_id = ? AND a.borough = ? AND a.bbl <> ?`,
		runID,
		borough,
		selfBBL,
	).Scan(&rows).Error
	return rows, err
}

// similarBuilding applies the cohort filters that need per-building
// facts. A missing unit count or year on either side skips that filter
// rather than excluding the peer.
func similarBuilding(row peerRow, targetUnits, targetYear int) bool {
	if row.UnitCount > 0 && targetUnits > 0 {
		ratio := float64(row.UnitCount) / float64(targetUnits)
		if ratio < peerUnitRatioMin || ratio > peerUnitRatioMax {
			return false
		}
	}
	if row.YearBuilt != 0 && targetYear != 0 {
		diff := row.YearBuilt - targetYear
		if diff < -peerYearRange || diff > peerYearRange {
			return false
		}
	}
	return true
}

// peerStanding converts a raw percentile into the published comparison
// line and urgency band. The band uses the exact percentile; formatting
// rounds for display only.
func peerStanding(percentile float64) (string, string) {
	switch {
	case percentile >= 90:
		return fmt.Sprintf("Top %.0f%% riskiest", 100-percentile), "CRITICAL"
	case percentile >= 75:
		return fmt.Sprintf("Top %.0f%% riskiest", 100-percentile), "HIGH"
	case percentile >= 50:
		return "Above average risk", "MODERATE"
	case percentile >= 25:
		return "Below average risk", "LOW"
	default:
		return fmt.Sprintf("Bottom %.0f%% risk", percentile), "LOW"
	}
}

func mean(values []float64) float64 {
	total := 0.0
	for _, v := range values {
		total += v
	}
	return total / float64(len(values))
}

func median(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
