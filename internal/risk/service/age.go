package service

import (
	"time"

	"github.com/smallbiznis/sentinel/internal/config"
)

// ageFactor scales risk by construction era. The cutoffs track the 1974
// lead paint ban and the rent-stabilization boom before it. A year
// outside 1800..today reads as unknown and stays at baseline.
func ageFactor(cfg config.AgeMultipliers, yearBuilt int, now time.Time) (float64, string) {
	if yearBuilt < 1800 || yearBuilt > now.Year() {
		return 1.0, "Unknown construction year (baseline risk)"
	}
	switch {
	case yearBuilt >= 1974:
		return 1.0, "Modern construction"
	case yearBuilt >= 1960:
		return cfg.Pre1974, "Rent-stabilized era (elevated risk)"
	default:
		return cfg.Pre1960, "Pre-1960 (critical risk - lead/heat)"
	}
}
