package domain

// Borough is one of the five NYC boroughs together with the multipliers
// the scoring engine applies to properties inside it.
type Borough struct {
	Code                  int     `json:"code"`
	Name                  string  `json:"name"`
	ExposureMultiplier    float64 `json:"exposure_multiplier"`
	BaseExposure          int64   `json:"base_exposure"`
	EnforcementMultiplier float64 `json:"enforcement_multiplier"`
}

// Dataset identifies one upstream NYC Open Data feed. Scored marks the
// feeds the refresh pipeline ingests for risk scoring.
type Dataset struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Source string `json:"source"`
	Kind   string `json:"kind"`
	Scored bool   `json:"scored"`
}
