// Package ranking orders scored properties for outreach and writes the
// periodic CSV/JSON export artifacts.
package ranking

import (
	"sort"

	riskdomain "github.com/smallbiznis/sentinel/internal/risk/domain"
)

// Rank orders assessments by risk score descending, breaking ties by BBL
// ascending, and drops repeated BBLs keeping the first after the sort.
// The input slice is not modified; calling Rank on its own output yields
// the same ordering.
func Rank(assessments []riskdomain.RiskAssessment) []riskdomain.RiskAssessment {
	ordered := make([]riskdomain.RiskAssessment, len(assessments))
	copy(ordered, assessments)

	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].RiskScore != ordered[j].RiskScore {
			return ordered[i].RiskScore > ordered[j].RiskScore
		}
		return ordered[i].BBL < ordered[j].BBL
	})

	seen := make(map[string]struct{}, len(ordered))
	deduped := ordered[:0]
	for _, assessment := range ordered {
		if _, ok := seen[assessment.BBL]; ok {
			continue
		}
		seen[assessment.BBL] = struct{}{}
		deduped = append(deduped, assessment)
	}
	return deduped
}
