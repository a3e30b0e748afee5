// Package domain contains persistence models for municipal record ingestion.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/sentinel/internal/severity"
	"gorm.io/datatypes"
)

// RecordKind distinguishes violations from complaints in the normalized store.
type RecordKind string

const (
	KindViolation RecordKind = "violation"
	KindComplaint RecordKind = "complaint"
)

// Canonical dispositions. Source feeds disagree on wording (HPD closes
// with "Close", DOB with "CLOSED"); the normalizer maps them onto this set
// so the open test is one membership check.
const (
	DispositionResolved  = "RESOLVED"
	DispositionDismissed = "DISMISSED"
	DispositionClosed    = "CLOSED"
)

// ResolvedDisposition reports whether a canonical disposition means the
// violation no longer needs work.
func ResolvedDisposition(disposition string) bool {
	switch disposition {
	case DispositionResolved, DispositionDismissed, DispositionClosed:
		return true
	}
	return false
}

// RawRecord keeps one source payload exactly as fetched so a batch can be
// re-normalized after rule changes without refetching.
type RawRecord struct {
	ID             snowflake.ID      `gorm:"primaryKey"`
	Source         string            `gorm:"type:text;not null;uniqueIndex:idx_raw_source_record"`
	Dataset        string            `gorm:"type:text;not null"`
	SourceRecordID string            `gorm:"type:text;not null;uniqueIndex:idx_raw_source_record"`
	Payload        datatypes.JSONMap `gorm:"type:jsonb"`
	FetchedAt      time.Time         `gorm:"not null"`
	CreatedAt      time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (RawRecord) TableName() string { return "raw_records" }

// NormalizedRecord is one violation or complaint after validation: BBL
// checked, date parsed, severity classified, complaint relevance tagged.
// EventDate stays nil when the source date could not be parsed; the record
// still counts toward totals (DateKnown=false marks it out of date-ordered
// views).
type NormalizedRecord struct {
	ID             snowflake.ID   `gorm:"primaryKey" json:"id"`
	Source         string         `gorm:"type:text;not null;uniqueIndex:idx_record_source_id" json:"source"`
	Dataset        string         `gorm:"type:text;not null" json:"dataset"`
	SourceRecordID string         `gorm:"type:text;not null;uniqueIndex:idx_record_source_id" json:"source_record_id"`
	Kind           RecordKind     `gorm:"type:text;not null;index" json:"kind"`
	BBL            string         `gorm:"type:text;not null;index" json:"bbl"`
	Borough        int            `gorm:"not null" json:"borough"`
	Category       string         `gorm:"type:text" json:"category"`
	Severity       severity.Class `gorm:"type:text" json:"severity,omitempty"`
	Relevant       bool           `gorm:"not null" json:"relevant"`
	Disposition    string         `gorm:"type:text" json:"disposition,omitempty"`
	Open           bool           `gorm:"not null" json:"open"`
	EventDate      *time.Time     `gorm:"index" json:"event_date,omitempty"`
	DateKnown      bool           `gorm:"not null" json:"date_known"`
	ResolvedAt     *time.Time     `json:"resolved_at,omitempty"`
	CreatedAt      time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (NormalizedRecord) TableName() string { return "normalized_records" }
