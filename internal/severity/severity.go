// Package severity classifies violation descriptions into the A/B/C
// hazard classes used across HPD and DOB enforcement.
package severity

import "strings"

// Class is a violation severity tier. C is immediately hazardous,
// A is non-hazardous.
type Class string

const (
	ClassA Class = "A"
	ClassB Class = "B"
	ClassC Class = "C"
)

// Valid reports whether the class is one of the three known tiers.
func (c Class) Valid() bool {
	switch c {
	case ClassA, ClassB, ClassC:
		return true
	}
	return false
}

// Rule maps a keyword set to a severity class. Rules are evaluated in
// order, most severe first, and the first match wins. Source feeds carry
// their own class field inconsistently (DOB often omits it), so keyword
// classification is the deterministic fallback.
type Rule struct {
	Class    Class    `mapstructure:"class" json:"class"`
	Keywords []string `mapstructure:"keywords" json:"keywords"`
}

// DefaultRules returns the stock classification ladder. Order matters:
// "IMMEDIATELY HAZARDOUS" must resolve to C before the bare "HAZARDOUS"
// rule can claim it for B.
func DefaultRules() []Rule {
	return []Rule{
		{Class: ClassC, Keywords: []string{"IMMEDIATELY HAZARDOUS", "EMERGENCY", "COLLAPSE", "STRUCTURAL"}},
		{Class: ClassB, Keywords: []string{"HAZARDOUS", "SAFETY", "FIRE", "ELECTRICAL", "PLUMBING"}},
	}
}

// Classifier resolves category strings to severity classes.
type Classifier struct {
	rules []Rule
}

// NewClassifier builds a classifier from ordered rules. Nil or empty
// rules fall back to DefaultRules.
func NewClassifier(rules []Rule) *Classifier {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	normalized := make([]Rule, 0, len(rules))
	for _, rule := range rules {
		keywords := make([]string, 0, len(rule.Keywords))
		for _, kw := range rule.Keywords {
			kw = strings.ToUpper(strings.TrimSpace(kw))
			if kw == "" {
				continue
			}
			keywords = append(keywords, kw)
		}
		if len(keywords) == 0 {
			continue
		}
		normalized = append(normalized, Rule{Class: rule.Class, Keywords: keywords})
	}
	return &Classifier{rules: normalized}
}

// Classify maps a raw category/description string to a severity class.
// Total over all strings: unmatched and empty input default to ClassA.
func (c *Classifier) Classify(category string) Class {
	upper := strings.ToUpper(category)
	for _, rule := range c.rules {
		for _, kw := range rule.Keywords {
			if strings.Contains(upper, kw) {
				return rule.Class
			}
		}
	}
	return ClassA
}
