package socrata

// RecordKind distinguishes violation feeds from complaint feeds during
// normalization.
type RecordKind string

const (
	KindViolation RecordKind = "violation"
	KindComplaint RecordKind = "complaint"
	KindPermit    RecordKind = "permit"
)

// Dataset describes one NYC Open Data resource and the field names the
// pipeline needs from it.
type Dataset struct {
	ID                string     `json:"id"`
	Name              string     `json:"name"`
	Source            string     `json:"source"`
	Kind              RecordKind `json:"kind"`
	IDField           string     `json:"id_field"`
	BBLField          string     `json:"bbl_field"`
	DateField         string     `json:"date_field"`
	CategoryField     string     `json:"category_field"`
	StatusField       string     `json:"status_field,omitempty"`
	ResolvedDateField string     `json:"resolved_date_field,omitempty"`
}

var (
	// DatasetHPDViolations is the Housing Preservation and Development
	// violation feed.
	DatasetHPDViolations = Dataset{
		ID:            "wvxf-dwi5",
		Name:          "HPD Housing Maintenance Code Violations",
		Source:        "hpd",
		Kind:          KindViolation,
		IDField:       "violationid",
		BBLField:      "bbl",
		DateField:     "inspectiondate",
		CategoryField: "novdescription",
		StatusField:   "violationstatus",
	}

	// DatasetDOBViolations is the Department of Buildings violation feed.
	DatasetDOBViolations = Dataset{
		ID:                "6bgk-3dad",
		Name:              "DOB Violations",
		Source:            "dob",
		Kind:              KindViolation,
		IDField:           "violation_number",
		BBLField:          "bbl",
		DateField:         "issue_date",
		CategoryField:     "violation_type",
		StatusField:       "disposition",
		ResolvedDateField: "disposition_date",
	}

	// Dataset311Complaints is the 311 service request feed.
	Dataset311Complaints = Dataset{
		ID:            "erm2-nwe9",
		Name:          "311 Service Requests",
		Source:        "311",
		Kind:          KindComplaint,
		IDField:       "unique_key",
		BBLField:      "bbl",
		DateField:     "created_date",
		CategoryField: "complaint_type",
		StatusField:   "status",
	}

	// DatasetDOBPermits is the DOB permit issuance feed, used to enrich
	// building profiles rather than to score.
	DatasetDOBPermits = Dataset{
		ID:            "ipu4-2q9a",
		Name:          "DOB Permit Issuance",
		Source:        "dob",
		Kind:          KindPermit,
		IDField:       "job__",
		BBLField:      "bin",
		DateField:     "filing_date",
		CategoryField: "permit_type",
	}
)

// ScoringDatasets returns the feeds the refresh pipeline ingests, in
// fetch order.
func ScoringDatasets() []Dataset {
	return []Dataset{DatasetHPDViolations, DatasetDOBViolations, Dataset311Complaints}
}

// AllDatasets returns every registered feed for the reference API.
func AllDatasets() []Dataset {
	return []Dataset{DatasetHPDViolations, DatasetDOBViolations, Dataset311Complaints, DatasetDOBPermits}
}
