package domain

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/sentinel/pkg/db/pagination"
)

// Rejection reasons reported per sync batch and on the rejection metric.
const (
	RejectInvalidBBL      = "invalid_bbl"
	RejectMissingRecordID = "missing_record_id"
)

// SyncRequest asks for one ingestion pass over the scoring feeds.
// Zero WindowDays means the configured default window; an empty Datasets
// list means every scoring dataset.
type SyncRequest struct {
	WindowDays int      `json:"window_days"`
	Datasets   []string `json:"datasets"`
}

// DatasetSync reports one feed's share of a sync pass.
type DatasetSync struct {
	Dataset      string `json:"dataset"`
	Name         string `json:"name"`
	Fetched      int    `json:"fetched"`
	Accepted     int    `json:"accepted"`
	Rejected     int    `json:"rejected"`
	UnknownDates int    `json:"unknown_dates"`
	Error        string `json:"error,omitempty"`
}

// SyncResult aggregates a full ingestion pass. Accepted counts records
// written or already present; Rejected counts records that failed
// validation and never reached the store.
type SyncResult struct {
	WindowDays   int           `json:"window_days"`
	StartedAt    time.Time     `json:"started_at"`
	CompletedAt  time.Time     `json:"completed_at"`
	Datasets     []DatasetSync `json:"datasets"`
	Fetched      int           `json:"fetched"`
	Accepted     int           `json:"accepted"`
	Rejected     int           `json:"rejected"`
	UnknownDates int           `json:"unknown_dates"`
}

// ViolationSummary is the per-property read model over normalized
// violations and complaints.
type ViolationSummary struct {
	BBL                string  `json:"bbl"`
	TotalViolations    int     `json:"total_violations"`
	ClassA             int     `json:"class_a"`
	ClassB             int     `json:"class_b"`
	ClassC             int     `json:"class_c"`
	OpenViolations     int     `json:"open_violations"`
	ResolvedViolations int     `json:"resolved_violations"`
	AvgDaysOpen        float64 `json:"avg_days_open"`
	LastInspection     string  `json:"last_inspection,omitempty"`
	TotalComplaints    int     `json:"total_complaints"`
	RelevantComplaints int     `json:"relevant_complaints"`
}

// ListRecordsRequest filters the normalized record store.
type ListRecordsRequest struct {
	BBL       string `form:"bbl"`
	Source    string `form:"source"`
	Kind      string `form:"kind"`
	PageToken string `form:"page_token"`
	PageSize  int32  `form:"page_size,default=50"`
}

type ListRecordsResponse struct {
	pagination.PageInfo
	Records []NormalizedRecord `json:"records"`
}

type Service interface {
	// SyncSources ingests every requested feed for the window. Feeds fail
	// independently: a fetch error marks that feed's slice of the result
	// and joins into the returned error, but the other feeds still land.
	SyncSources(context.Context, SyncRequest) (*SyncResult, error)
	ViolationSummary(ctx context.Context, bbl string) (*ViolationSummary, error)
	HeatComplaintCount(ctx context.Context, bbl string, since time.Time) (int, error)
	List(context.Context, ListRecordsRequest) (ListRecordsResponse, error)
}

var (
	ErrInvalidBBL     = errors.New("invalid_bbl")
	ErrInvalidDataset = errors.New("invalid_dataset")
	ErrInvalidWindow  = errors.New("invalid_window")
)
