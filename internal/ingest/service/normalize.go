package service

import (
	"strings"
	"time"

	"github.com/smallbiznis/sentinel/internal/bbl"
	"github.com/smallbiznis/sentinel/internal/config"
	ingestdomain "github.com/smallbiznis/sentinel/internal/ingest/domain"
	"github.com/smallbiznis/sentinel/internal/severity"
	"github.com/smallbiznis/sentinel/internal/socrata"
)

// eventDateFormats covers the date shapes the feeds actually emit:
// Socrata floating timestamps, plain ISO dates, and the US form some
// DOB extracts still use.
var eventDateFormats = []string{
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-01-02",
	"01/02/2006",
}

// normalizer turns fetched payloads into canonical records. It is built
// once per sync pass so every record in a batch sees the same scoring
// config even if a hot reload lands mid-run.
type normalizer struct {
	scoring    config.ScoringConfig
	classifier *severity.Classifier
}

func newNormalizer(cfg config.ScoringConfig) *normalizer {
	return &normalizer{
		scoring:    cfg,
		classifier: severity.NewClassifier(cfg.SeverityRules),
	}
}

// normalize validates one fetched record. The reason return is empty on
// success, otherwise it names the rejection bucket. Unparseable dates are
// not rejections: the record keeps a nil EventDate and counts toward
// totals.
func (n *normalizer) normalize(ds socrata.Dataset, rec socrata.Record) (*ingestdomain.NormalizedRecord, string) {
	sourceID := rec.Field(ds.IDField)
	if sourceID == "" {
		return nil, ingestdomain.RejectMissingRecordID
	}

	parsed, err := bbl.Parse(rec.Field(ds.BBLField))
	if err != nil {
		return nil, ingestdomain.RejectInvalidBBL
	}

	record := &ingestdomain.NormalizedRecord{
		Source:         ds.Source,
		Dataset:        ds.ID,
		SourceRecordID: sourceID,
		BBL:            parsed.String(),
		Borough:        parsed.Borough(),
		Category:       strings.ToUpper(rec.Field(ds.CategoryField)),
		Disposition:    canonicalDisposition(rec.Field(ds.StatusField)),
	}
	record.Open = !ingestdomain.ResolvedDisposition(record.Disposition)

	if date, ok := parseEventDate(rec.Field(ds.DateField)); ok {
		record.EventDate = &date
		record.DateKnown = true
	}

	switch ds.Kind {
	case socrata.KindViolation:
		record.Kind = ingestdomain.KindViolation
		record.Severity = n.classifier.Classify(record.Category)
		if ds.ResolvedDateField != "" && !record.Open {
			if resolved, ok := parseEventDate(rec.Field(ds.ResolvedDateField)); ok {
				record.ResolvedAt = &resolved
			}
		}
	default:
		record.Kind = ingestdomain.KindComplaint
		record.Relevant = n.scoring.RelevantComplaint(record.Category)
	}

	return record, ""
}

// canonicalDisposition maps feed-specific status wording onto the
// canonical disposition set. HPD closes violations with "Close" where DOB
// and 311 use "Closed".
func canonicalDisposition(raw string) string {
	value := strings.ToUpper(strings.TrimSpace(raw))
	if value == "CLOSE" {
		return ingestdomain.DispositionClosed
	}
	return value
}

func parseEventDate(raw string) (time.Time, bool) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range eventDateFormats {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed.UTC(), true
		}
	}
	return time.Time{}, false
}
