// Package domain contains persistence models for risk assessment outputs.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Priority is the categorical urgency label attached to an assessment.
// It is derived from rollup counts and independent of the numeric score.
type Priority string

const (
	PriorityCritical Priority = "CRITICAL"
	PriorityHigh     Priority = "HIGH"
	PriorityMedium   Priority = "MEDIUM"
	PriorityLow      Priority = "LOW"
	PriorityClean    Priority = "CLEAN"
)

// RunStatus tracks the lifecycle of one scoring pipeline execution.
type RunStatus string

const (
	RunStatusPending   RunStatus = "PENDING"
	RunStatusRunning   RunStatus = "RUNNING"
	RunStatusSucceeded RunStatus = "SUCCEEDED"
	RunStatusFailed    RunStatus = "FAILED"
)

// RiskAssessment is the immutable scoring result for one property in one run.
type RiskAssessment struct {
	ID                 snowflake.ID `gorm:"primaryKey" json:"id"`
	RunID              snowflake.ID `gorm:"not null;uniqueIndex:idx_assessment_run_bbl" json:"run_id"`
	BBL                string       `gorm:"type:text;not null;uniqueIndex:idx_assessment_run_bbl;index" json:"bbl"`
	Borough            int          `gorm:"not null" json:"borough"`
	RiskScore          float64      `gorm:"not null" json:"risk_score"`
	Exposure           int64        `gorm:"not null" json:"exposure"`
	FixPriority        Priority     `gorm:"type:text;not null" json:"fix_priority"`
	ViolationCount     int          `gorm:"not null" json:"violation_count"`
	OpenViolations     int          `gorm:"not null" json:"open_violations"`
	ClassA             int          `gorm:"not null" json:"class_a"`
	ClassB             int          `gorm:"not null" json:"class_b"`
	ClassC             int          `gorm:"not null" json:"class_c"`
	OpenClassA         int          `gorm:"not null" json:"open_class_a"`
	OpenClassB         int          `gorm:"not null" json:"open_class_b"`
	OpenClassC         int          `gorm:"not null" json:"open_class_c"`
	RelevantComplaints int          `gorm:"not null" json:"relevant_complaints"`
	DataFreshnessDate  string       `gorm:"type:text;not null" json:"data_freshness_date"`
	DataCoverageDays   int          `gorm:"not null" json:"data_coverage_days"`
	CreatedAt          time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (RiskAssessment) TableName() string { return "risk_assessments" }

// AssessmentRun records one end-to-end pipeline execution with its
// window, counters and integrity checksum.
type AssessmentRun struct {
	ID              snowflake.ID `gorm:"primaryKey" json:"id"`
	Trigger         string       `gorm:"type:text;not null" json:"trigger"`
	Status          RunStatus    `gorm:"type:text;not null;index" json:"status"`
	WindowDays      int          `gorm:"not null" json:"window_days"`
	FetchedRecords  int          `gorm:"not null" json:"fetched_records"`
	AcceptedRecords int          `gorm:"not null" json:"accepted_records"`
	RejectedRecords int          `gorm:"not null" json:"rejected_records"`
	AssessmentCount int          `gorm:"not null" json:"assessment_count"`
	Checksum        string       `gorm:"type:text;not null" json:"checksum"`
	Error           string       `gorm:"type:text" json:"error,omitempty"`
	StartedAt       time.Time    `gorm:"not null" json:"started_at"`
	CompletedAt     *time.Time   `json:"completed_at,omitempty"`
	CreatedAt       time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt       time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (AssessmentRun) TableName() string { return "assessment_runs" }

// BuildingProfile holds slowly-changing facts about a property used by
// the age factor and peer benchmarking. YearBuilt zero means unknown.
type BuildingProfile struct {
	BBL             string    `gorm:"primaryKey;type:text" json:"bbl"`
	Address         string    `gorm:"type:text" json:"address"`
	Borough         int       `gorm:"not null;index" json:"borough"`
	UnitCount       int       `gorm:"not null" json:"unit_count"`
	YearBuilt       int       `gorm:"not null" json:"year_built"`
	CouncilDistrict string    `gorm:"type:text" json:"council_district,omitempty"`
	LastInspection  string    `gorm:"type:text" json:"last_inspection,omitempty"`
	CreatedAt       time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt       time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (BuildingProfile) TableName() string { return "building_profiles" }
