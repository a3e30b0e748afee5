// Package rollup aggregates normalized records into the per-property
// counts that feed risk scoring.
package rollup

import (
	"time"

	ingestdomain "github.com/smallbiznis/sentinel/internal/ingest/domain"
	"github.com/smallbiznis/sentinel/internal/severity"
)

// PropertyRollup is the per-BBL aggregate for one scoring run. Violation
// and complaint counts stay strictly separate: complaints never inflate
// the violation total.
type PropertyRollup struct {
	BBL                string     `json:"bbl"`
	Borough            int        `json:"borough"`
	ClassA             int        `json:"class_a"`
	ClassB             int        `json:"class_b"`
	ClassC             int        `json:"class_c"`
	OpenClassA         int        `json:"open_class_a"`
	OpenClassB         int        `json:"open_class_b"`
	OpenClassC         int        `json:"open_class_c"`
	RelevantComplaints int        `json:"relevant_complaints"`
	TotalComplaints    int        `json:"total_complaints"`
	LastEvent          *time.Time `json:"last_event,omitempty"`
}

// TotalViolations is the violation count across all three severity
// classes. The classifier is total, so every violation lands in exactly
// one class and the sum equals the raw violation count.
func (r *PropertyRollup) TotalViolations() int {
	return r.ClassA + r.ClassB + r.ClassC
}

// OpenViolations counts violations whose disposition has not resolved
// them, across all classes.
func (r *PropertyRollup) OpenViolations() int {
	return r.OpenClassA + r.OpenClassB + r.OpenClassC
}

// Aggregate groups records by BBL. A property with only complaints still
// produces a rollup with zero violation counts, and empty input produces
// an empty map.
func Aggregate(records []ingestdomain.NormalizedRecord) map[string]*PropertyRollup {
	rollups := make(map[string]*PropertyRollup)
	for i := range records {
		record := &records[i]
		property, ok := rollups[record.BBL]
		if !ok {
			property = &PropertyRollup{BBL: record.BBL, Borough: record.Borough}
			rollups[record.BBL] = property
		}
		property.apply(record)
	}
	return rollups
}

// Merge folds src into dst, summing counts where a BBL appears in both.
// The same property can surface in more than one source batch, so partial
// aggregates combine additively, never by overwrite.
func Merge(dst, src map[string]*PropertyRollup) map[string]*PropertyRollup {
	if dst == nil {
		dst = make(map[string]*PropertyRollup, len(src))
	}
	for key, partial := range src {
		existing, ok := dst[key]
		if !ok {
			dst[key] = partial
			continue
		}
		existing.absorb(partial)
	}
	return dst
}

func (r *PropertyRollup) apply(record *ingestdomain.NormalizedRecord) {
	switch record.Kind {
	case ingestdomain.KindViolation:
		switch record.Severity {
		case severity.ClassA:
			r.ClassA++
			if record.Open {
				r.OpenClassA++
			}
		case severity.ClassB:
			r.ClassB++
			if record.Open {
				r.OpenClassB++
			}
		case severity.ClassC:
			r.ClassC++
			if record.Open {
				r.OpenClassC++
			}
		}
	case ingestdomain.KindComplaint:
		r.TotalComplaints++
		if record.Relevant {
			r.RelevantComplaints++
		}
	}
	if record.DateKnown && record.EventDate != nil {
		r.markEvent(*record.EventDate)
	}
}

func (r *PropertyRollup) absorb(other *PropertyRollup) {
	r.ClassA += other.ClassA
	r.ClassB += other.ClassB
	r.ClassC += other.ClassC
	r.OpenClassA += other.OpenClassA
	r.OpenClassB += other.OpenClassB
	r.OpenClassC += other.OpenClassC
	r.RelevantComplaints += other.RelevantComplaints
	r.TotalComplaints += other.TotalComplaints
	if other.LastEvent != nil {
		r.markEvent(*other.LastEvent)
	}
}

func (r *PropertyRollup) markEvent(eventDate time.Time) {
	if r.LastEvent == nil || eventDate.After(*r.LastEvent) {
		r.LastEvent = &eventDate
	}
}
