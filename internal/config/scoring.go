package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/smallbiznis/sentinel/internal/severity"
	"github.com/spf13/viper"
)

// ScoringConfig carries every tunable business constant of the risk
// engine. The defaults are the published scoring contract; file overrides
// exist for staging experiments and must survive validation before they
// are applied.
type ScoringConfig struct {
	Weights          ScoreWeights          `mapstructure:"weights"`
	BaseExposure     int                   `mapstructure:"baseExposure"`
	Boroughs         []BoroughWeight       `mapstructure:"boroughs"`
	Priority         PriorityRules         `mapstructure:"priority"`
	SeverityRules    []severity.Rule       `mapstructure:"severityRules"`
	RelevantTypes    []string              `mapstructure:"relevantComplaintTypes"`
	Heat             HeatConfig            `mapstructure:"heat"`
	Age              AgeMultipliers        `mapstructure:"age"`
	Enforcement      []EnforcementBaseline `mapstructure:"enforcement"`
	Hotspots         []DistrictHotspot     `mapstructure:"districtHotspots"`
	ExportSampleSize int                   `mapstructure:"exportSampleSize"`
}

// ScoreWeights are the coefficients of the weighted risk formula.
type ScoreWeights struct {
	ClassB            float64 `mapstructure:"classB"`
	RelevantComplaint float64 `mapstructure:"relevantComplaint"`
	TotalViolation    float64 `mapstructure:"totalViolation"`
}

// BoroughWeight scales the base fine exposure per borough.
type BoroughWeight struct {
	Code       int     `mapstructure:"code"`
	Multiplier float64 `mapstructure:"multiplier"`
}

// PriorityRules hold the fix-priority ladder thresholds. Any class C
// violation forces CRITICAL regardless of these.
type PriorityRules struct {
	HighClassBOver int `mapstructure:"highClassBOver"`
	MediumOpenOver int `mapstructure:"mediumOpenOver"`
}

// HeatConfig tunes the seasonal heat model.
type HeatConfig struct {
	TempSevereF     float64 `mapstructure:"tempSevereF"`
	TempColdF       float64 `mapstructure:"tempColdF"`
	CriticalUrgency float64 `mapstructure:"criticalUrgency"`
	HighUrgency     float64 `mapstructure:"highUrgency"`
	ModerateUrgency float64 `mapstructure:"moderateUrgency"`
}

// AgeMultipliers scale risk for older housing stock.
type AgeMultipliers struct {
	Pre1960 float64 `mapstructure:"pre1960"`
	Pre1974 float64 `mapstructure:"pre1974"`
}

// EnforcementBaseline captures observed inspection intensity per borough.
type EnforcementBaseline struct {
	Borough    string  `mapstructure:"borough"`
	Multiplier float64 `mapstructure:"multiplier"`
}

// DistrictHotspot overrides the borough baseline for council districts
// with concentrated inspector activity.
type DistrictHotspot struct {
	District   string  `mapstructure:"district"`
	Multiplier float64 `mapstructure:"multiplier"`
}

// DefaultScoringConfig returns the published scoring contract.
func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{
		Weights: ScoreWeights{
			ClassB:            2.0,
			RelevantComplaint: 1.5,
			TotalViolation:    0.5,
		},
		BaseExposure: 27450,
		Boroughs: []BoroughWeight{
			{Code: 1, Multiplier: 1.2},
			{Code: 2, Multiplier: 1.1},
			{Code: 3, Multiplier: 1.0},
			{Code: 4, Multiplier: 0.9},
			{Code: 5, Multiplier: 0.85},
		},
		Priority: PriorityRules{
			HighClassBOver: 2,
			MediumOpenOver: 5,
		},
		SeverityRules: severity.DefaultRules(),
		RelevantTypes: []string{"HEAT/HOT WATER", "PLUMBING"},
		Heat: HeatConfig{
			TempSevereF:     55,
			TempColdF:       62,
			CriticalUrgency: 4.0,
			HighUrgency:     2.5,
			ModerateUrgency: 1.5,
		},
		Age: AgeMultipliers{
			Pre1960: 3.8,
			Pre1974: 2.5,
		},
		Enforcement: []EnforcementBaseline{
			{Borough: "manhattan", Multiplier: 1.3},
			{Borough: "bronx", Multiplier: 1.4},
			{Borough: "brooklyn", Multiplier: 1.2},
			{Borough: "queens", Multiplier: 1.1},
			{Borough: "staten_island", Multiplier: 0.9},
		},
		Hotspots: []DistrictHotspot{
			{District: "brooklyn_council_35", Multiplier: 1.9},
			{District: "brooklyn_council_36", Multiplier: 2.3},
			{District: "brooklyn_council_39", Multiplier: 1.7},
			{District: "brooklyn_council_41", Multiplier: 1.8},
			{District: "manhattan_council_7", Multiplier: 2.1},
			{District: "manhattan_council_9", Multiplier: 1.9},
			{District: "manhattan_council_10", Multiplier: 1.6},
			{District: "queens_council_22", Multiplier: 1.7},
			{District: "queens_council_25", Multiplier: 1.5},
			{District: "queens_council_26", Multiplier: 1.6},
			{District: "bronx_council_8", Multiplier: 2.0},
			{District: "bronx_council_14", Multiplier: 1.8},
			{District: "bronx_council_15", Multiplier: 2.2},
			{District: "bronx_council_17", Multiplier: 1.9},
		},
		ExportSampleSize: 100,
	}
}

// BoroughMultiplier returns the exposure multiplier for a borough code,
// 1.0 when the borough is not configured.
func (c ScoringConfig) BoroughMultiplier(code int) float64 {
	for _, b := range c.Boroughs {
		if b.Code == code {
			return b.Multiplier
		}
	}
	return 1.0
}

// EnforcementMultiplier returns the inspection-intensity baseline for a
// borough name, 1.0 when unknown.
func (c ScoringConfig) EnforcementMultiplier(borough string) float64 {
	key := strings.ToLower(strings.TrimSpace(borough))
	key = strings.ReplaceAll(key, " ", "_")
	for _, b := range c.Enforcement {
		if b.Borough == key {
			return b.Multiplier
		}
	}
	return 1.0
}

// DistrictMultiplier returns the hotspot multiplier for a council
// district key, reporting whether the district is configured.
func (c ScoringConfig) DistrictMultiplier(district string) (float64, bool) {
	key := strings.ToLower(strings.TrimSpace(district))
	if key == "" {
		return 0, false
	}
	for _, h := range c.Hotspots {
		if h.District == key {
			return h.Multiplier, true
		}
	}
	return 0, false
}

// RelevantComplaint reports whether a 311 complaint type counts toward
// the relevant-complaint weight. Exact match after trimming.
func (c ScoringConfig) RelevantComplaint(complaintType string) bool {
	trimmed := strings.TrimSpace(complaintType)
	for _, t := range c.RelevantTypes {
		if trimmed == t {
			return true
		}
	}
	return false
}

// ScoringHolder hands out the active scoring config and hot-reloads it
// when the underlying file changes.
type ScoringHolder struct {
	current atomic.Value // holds ScoringConfig
}

// NewScoringHolder reads scoring.yml from the usual locations, falling
// back to defaults when no file exists. A file watcher applies valid
// updates in place; invalid updates are logged and ignored so the last
// good config keeps serving.
func NewScoringHolder() (*ScoringHolder, error) {
	v := viper.New()

	v.SetConfigName("scoring")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/sentinel/config") // volume-mounted config
	v.AddConfigPath("/etc/sentinel")            // system config
	v.AddConfigPath(".")                        // current directory (dev mode)

	v.SetEnvPrefix("SENTINEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults first so a partial scoring.yml only overrides what it names.
	setScoringDefaults(v, DefaultScoringConfig())

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	cfg, err := unmarshalScoring(v)
	if err != nil {
		return nil, err
	}

	holder := &ScoringHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := unmarshalScoring(v)
		if err != nil {
			log.Printf("[scoring-config] reload rejected: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[scoring-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// Get returns the active scoring config.
func (h *ScoringHolder) Get() ScoringConfig {
	return h.current.Load().(ScoringConfig)
}

// Store replaces the active config. Used by tests.
func (h *ScoringHolder) Store(cfg ScoringConfig) {
	h.current.Store(cfg)
}

// NewStaticScoringHolder wraps a fixed config without file watching.
func NewStaticScoringHolder(cfg ScoringConfig) *ScoringHolder {
	holder := &ScoringHolder{}
	holder.current.Store(cfg)
	return holder
}

func unmarshalScoring(v *viper.Viper) (ScoringConfig, error) {
	var cfg ScoringConfig
	if err := v.UnmarshalKey("scoring", &cfg); err != nil {
		return ScoringConfig{}, err
	}
	if err := ValidateScoringConfig(cfg); err != nil {
		return ScoringConfig{}, err
	}
	return cfg, nil
}

func setScoringDefaults(v *viper.Viper, defaults ScoringConfig) {
	v.SetDefault("scoring.weights", defaults.Weights)
	v.SetDefault("scoring.baseExposure", defaults.BaseExposure)
	v.SetDefault("scoring.boroughs", defaults.Boroughs)
	v.SetDefault("scoring.priority", defaults.Priority)
	v.SetDefault("scoring.severityRules", defaults.SeverityRules)
	v.SetDefault("scoring.relevantComplaintTypes", defaults.RelevantTypes)
	v.SetDefault("scoring.heat", defaults.Heat)
	v.SetDefault("scoring.age", defaults.Age)
	v.SetDefault("scoring.enforcement", defaults.Enforcement)
	v.SetDefault("scoring.districtHotspots", defaults.Hotspots)
	v.SetDefault("scoring.exportSampleSize", defaults.ExportSampleSize)
}

// ValidateScoringConfig rejects configs that would corrupt published
// scores. Called on load and on every hot reload.
func ValidateScoringConfig(cfg ScoringConfig) error {
	if cfg.Weights.ClassB < 0 || cfg.Weights.RelevantComplaint < 0 || cfg.Weights.TotalViolation < 0 {
		return errors.New("scoring.weights cannot be negative")
	}
	if cfg.Weights.ClassB == 0 && cfg.Weights.RelevantComplaint == 0 && cfg.Weights.TotalViolation == 0 {
		return errors.New("scoring.weights cannot all be zero")
	}
	if cfg.BaseExposure <= 0 {
		return errors.New("scoring.baseExposure must be positive")
	}
	if len(cfg.Boroughs) == 0 {
		return errors.New("scoring.boroughs cannot be empty")
	}
	seen := map[int]bool{}
	for _, b := range cfg.Boroughs {
		if b.Code < 1 || b.Code > 5 {
			return fmt.Errorf("scoring.boroughs: invalid borough code %d", b.Code)
		}
		if b.Multiplier <= 0 {
			return fmt.Errorf("scoring.boroughs: multiplier for borough %d must be positive", b.Code)
		}
		if seen[b.Code] {
			return fmt.Errorf("scoring.boroughs: duplicate borough code %d", b.Code)
		}
		seen[b.Code] = true
	}
	for _, rule := range cfg.SeverityRules {
		if !rule.Class.Valid() {
			return fmt.Errorf("scoring.severityRules: unknown class %q", rule.Class)
		}
		if len(rule.Keywords) == 0 {
			return fmt.Errorf("scoring.severityRules: class %s has no keywords", rule.Class)
		}
	}
	if len(cfg.RelevantTypes) == 0 {
		return errors.New("scoring.relevantComplaintTypes cannot be empty")
	}
	if cfg.Age.Pre1960 < 1 || cfg.Age.Pre1974 < 1 {
		return errors.New("scoring.age multipliers cannot be below 1")
	}
	for _, h := range cfg.Hotspots {
		if strings.TrimSpace(h.District) == "" {
			return errors.New("scoring.districtHotspots: district cannot be empty")
		}
		if h.Multiplier <= 0 {
			return fmt.Errorf("scoring.districtHotspots: multiplier for %s must be positive", h.District)
		}
	}
	if cfg.ExportSampleSize <= 0 {
		return errors.New("scoring.exportSampleSize must be positive")
	}
	return nil
}
