package service

import (
	"github.com/smallbiznis/sentinel/internal/config"
)

// enforcementMultiplier resolves local inspection intensity. A council
// district hotspot overrides the borough baseline; the boolean reports
// whether a hotspot matched.
func enforcementMultiplier(cfg config.ScoringConfig, borough, district string) (float64, bool) {
	if mult, ok := cfg.DistrictMultiplier(district); ok {
		return mult, true
	}
	return cfg.EnforcementMultiplier(borough), false
}
