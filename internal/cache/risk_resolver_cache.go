package cache

import (
	"strings"
	"time"

	riskdomain "github.com/smallbiznis/sentinel/internal/risk/domain"
)

const (
	defaultAssessmentTTL = time.Minute
	defaultProfileTTL    = 10 * time.Minute
	defaultRunTTL        = 30 * time.Second
)

// RiskResolverCache stores hot-path lookups for property risk reads. The
// assessment and run layers expire quickly so API responses converge on a
// fresh pipeline run without waiting out a long TTL; building profiles
// change rarely and keep a longer one.
type RiskResolverCache interface {
	GetLatestAssessment(bbl string) (riskdomain.RiskAssessment, bool)
	SetLatestAssessment(bbl string, assessment riskdomain.RiskAssessment)
	GetProfile(bbl string) (riskdomain.BuildingProfile, bool)
	SetProfile(bbl string, profile riskdomain.BuildingProfile)
	GetLatestRun() (riskdomain.AssessmentRun, bool)
	SetLatestRun(run riskdomain.AssessmentRun)
	PurgeAssessments()
}

type riskResolverCache struct {
	assessments   Cache[string, riskdomain.RiskAssessment]
	profiles      Cache[string, riskdomain.BuildingProfile]
	runs          Cache[string, riskdomain.AssessmentRun]
	assessmentTTL time.Duration
	profileTTL    time.Duration
	runTTL        time.Duration
}

// NewRiskResolverCache returns an in-memory cache tuned for risk reads.
func NewRiskResolverCache() RiskResolverCache {
	return &riskResolverCache{
		assessments:   NewTTLCache[string, riskdomain.RiskAssessment](),
		profiles:      NewTTLCache[string, riskdomain.BuildingProfile](),
		runs:          NewTTLCache[string, riskdomain.AssessmentRun](),
		assessmentTTL: defaultAssessmentTTL,
		profileTTL:    defaultProfileTTL,
		runTTL:        defaultRunTTL,
	}
}

func (c *riskResolverCache) GetLatestAssessment(bbl string) (riskdomain.RiskAssessment, bool) {
	return c.assessments.Get(cacheKey(bbl))
}

func (c *riskResolverCache) SetLatestAssessment(bbl string, assessment riskdomain.RiskAssessment) {
	if assessment.ID == 0 {
		return
	}
	c.assessments.Set(cacheKey(bbl), assessment, c.assessmentTTL)
}

func (c *riskResolverCache) GetProfile(bbl string) (riskdomain.BuildingProfile, bool) {
	return c.profiles.Get(cacheKey(bbl))
}

func (c *riskResolverCache) SetProfile(bbl string, profile riskdomain.BuildingProfile) {
	if profile.BBL == "" {
		return
	}
	c.profiles.Set(cacheKey(bbl), profile, c.profileTTL)
}

func (c *riskResolverCache) GetLatestRun() (riskdomain.AssessmentRun, bool) {
	return c.runs.Get("latest")
}

func (c *riskResolverCache) SetLatestRun(run riskdomain.AssessmentRun) {
	if run.ID == 0 {
		return
	}
	c.runs.Set("latest", run, c.runTTL)
}

// PurgeAssessments drops every cached assessment and run. Called when a
// pipeline run completes so readers pick up the new snapshot immediately.
func (c *riskResolverCache) PurgeAssessments() {
	c.assessments.Purge()
	c.runs.Purge()
}

func cacheKey(parts ...string) string {
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		values = append(values, strings.ToLower(trimmed))
	}
	return strings.Join(values, "|")
}
