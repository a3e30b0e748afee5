package service

import (
	"testing"
	"time"

	"github.com/smallbiznis/sentinel/internal/config"
	ingestdomain "github.com/smallbiznis/sentinel/internal/ingest/domain"
	"github.com/smallbiznis/sentinel/internal/severity"
	"github.com/smallbiznis/sentinel/internal/socrata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testNormalizer() *normalizer {
	return newNormalizer(config.DefaultScoringConfig())
}

func TestNormalizeHPDViolation(t *testing.T) {
	record, reason := testNormalizer().normalize(socrata.DatasetHPDViolations, socrata.Record{
		"violationid":     "987654",
		"bbl":             "3-01234-0056",
		"inspectiondate":  "2024-01-15T00:00:00.000",
		"novdescription":  "SECTION 27-2028 heat and hot water immediately hazardous",
		"violationstatus": "Open",
	})

	require.Empty(t, reason)
	assert.Equal(t, "3012340056", record.BBL)
	assert.Equal(t, 3, record.Borough)
	assert.Equal(t, ingestdomain.KindViolation, record.Kind)
	assert.Equal(t, severity.ClassC, record.Severity)
	assert.True(t, record.Open)
	assert.True(t, record.DateKnown)
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), record.EventDate.UTC())
}

func TestNormalizeMapsHPDCloseToResolved(t *testing.T) {
	record, reason := testNormalizer().normalize(socrata.DatasetHPDViolations, socrata.Record{
		"violationid":     "987655",
		"bbl":             "3012340056",
		"inspectiondate":  "2024-01-10T00:00:00.000",
		"novdescription":  "BROKEN FIRE ESCAPE",
		"violationstatus": "Close",
	})

	require.Empty(t, reason)
	assert.Equal(t, ingestdomain.DispositionClosed, record.Disposition)
	assert.False(t, record.Open)
	assert.Equal(t, severity.ClassB, record.Severity)
	assert.Nil(t, record.ResolvedAt, "HPD feed carries no disposition date")
}

func TestNormalizeDOBResolutionDate(t *testing.T) {
	record, reason := testNormalizer().normalize(socrata.DatasetDOBViolations, socrata.Record{
		"violation_number": "DOB-2024-001",
		"bbl":              "1000010001",
		"issue_date":       "2024-02-01T00:00:00.000",
		"violation_type":   "CONSTRUCTION",
		"disposition":      "Resolved",
		"disposition_date": "2024-03-01T00:00:00.000",
	})

	require.Empty(t, reason)
	assert.Equal(t, severity.ClassA, record.Severity)
	assert.False(t, record.Open)
	require.NotNil(t, record.ResolvedAt)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), record.ResolvedAt.UTC())
}

func TestNormalizeComplaintRelevance(t *testing.T) {
	norm := testNormalizer()

	relevant, reason := norm.normalize(socrata.Dataset311Complaints, socrata.Record{
		"unique_key":     "311-1",
		"bbl":            "3012340056",
		"created_date":   "2024-02-10T00:00:00.000",
		"complaint_type": "HEAT/HOT WATER",
		"status":         "Open",
	})
	require.Empty(t, reason)
	assert.Equal(t, ingestdomain.KindComplaint, relevant.Kind)
	assert.True(t, relevant.Relevant)
	assert.Empty(t, relevant.Severity)

	ignored, reason := norm.normalize(socrata.Dataset311Complaints, socrata.Record{
		"unique_key":     "311-2",
		"bbl":            "3012340056",
		"created_date":   "02/15/2024",
		"complaint_type": "NOISE - RESIDENTIAL",
		"status":         "Closed",
	})
	require.Empty(t, reason)
	assert.False(t, ignored.Relevant)
	assert.False(t, ignored.Open)
	assert.True(t, ignored.DateKnown, "US date format must parse")
}

func TestNormalizeRejectsInvalidBorough(t *testing.T) {
	record, reason := testNormalizer().normalize(socrata.DatasetHPDViolations, socrata.Record{
		"violationid":    "1",
		"bbl":            "9012340056",
		"inspectiondate": "2024-01-15T00:00:00.000",
	})
	assert.Nil(t, record)
	assert.Equal(t, ingestdomain.RejectInvalidBBL, reason)
}

func TestNormalizeRejectsMissingRecordID(t *testing.T) {
	record, reason := testNormalizer().normalize(socrata.DatasetHPDViolations, socrata.Record{
		"bbl":            "3012340056",
		"inspectiondate": "2024-01-15T00:00:00.000",
	})
	assert.Nil(t, record)
	assert.Equal(t, ingestdomain.RejectMissingRecordID, reason)
}

func TestNormalizeKeepsUnknownDates(t *testing.T) {
	record, reason := testNormalizer().normalize(socrata.DatasetHPDViolations, socrata.Record{
		"violationid":    "77",
		"bbl":            "3012340056",
		"inspectiondate": "not a date",
		"novdescription": "PAINT PEELING",
	})

	require.Empty(t, reason, "bad dates are sentinels, not rejections")
	assert.False(t, record.DateKnown)
	assert.Nil(t, record.EventDate)
	assert.Equal(t, severity.ClassA, record.Severity)
}

func TestParseEventDateFormats(t *testing.T) {
	cases := map[string]time.Time{
		"2024-01-15T10:30:00.000": time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
		"2024-01-15T10:30:00":     time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
		"2024-01-15T10:30:00Z":    time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
		"2024-01-15":              time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		"01/15/2024":              time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
	}
	for input, want := range cases {
		got, ok := parseEventDate(input)
		require.True(t, ok, input)
		assert.Equal(t, want, got, input)
	}

	_, ok := parseEventDate("")
	assert.False(t, ok)
	_, ok = parseEventDate("15 January 2024")
	assert.False(t, ok)
}

func TestCanonicalDisposition(t *testing.T) {
	assert.Equal(t, "CLOSED", canonicalDisposition("Close"))
	assert.Equal(t, "CLOSED", canonicalDisposition(" closed "))
	assert.Equal(t, "RESOLVED", canonicalDisposition("resolved"))
	assert.Equal(t, "OPEN", canonicalDisposition("Open"))
	assert.Equal(t, "", canonicalDisposition(""))

	assert.True(t, ingestdomain.ResolvedDisposition("CLOSED"))
	assert.True(t, ingestdomain.ResolvedDisposition("DISMISSED"))
	assert.False(t, ingestdomain.ResolvedDisposition("OPEN"))
	assert.False(t, ingestdomain.ResolvedDisposition(""))
}
