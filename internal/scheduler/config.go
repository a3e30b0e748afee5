package scheduler

import (
	"time"

	"github.com/smallbiznis/sentinel/internal/config"
)

// Config controls scheduler cadence, the scoring window and retention.
type Config struct {
	RunInterval       time.Duration
	WindowDays        int
	Retention         time.Duration
	StaleRunThreshold time.Duration
	EnabledJobs       []string
}

func DefaultConfig() Config {
	return Config{
		RunInterval:       6 * time.Hour,
		WindowDays:        90,
		Retention:         30 * 24 * time.Hour,
		StaleRunThreshold: 2 * time.Hour,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.WindowDays <= 0 {
		c.WindowDays = defaults.WindowDays
	}
	if c.Retention <= 0 {
		c.Retention = defaults.Retention
	}
	if c.StaleRunThreshold <= 0 {
		c.StaleRunThreshold = defaults.StaleRunThreshold
	}
	return c
}

// ProvideConfig maps application settings onto the scheduler knobs.
func ProvideConfig(cfg config.Config) Config {
	return Config{
		RunInterval: time.Duration(cfg.RefreshIntervalMinutes) * time.Minute,
		WindowDays:  cfg.Socrata.WindowDays,
		Retention:   time.Duration(cfg.RunRetentionDays) * 24 * time.Hour,
		EnabledJobs: cfg.SchedulerJobs,
	}
}
