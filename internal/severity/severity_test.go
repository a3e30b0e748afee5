package severity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyDefaultLadder(t *testing.T) {
	c := NewClassifier(nil)

	cases := []struct {
		category string
		want     Class
	}{
		{"IMMEDIATELY HAZARDOUS WINDOW GUARD MISSING", ClassC},
		{"EMERGENCY REPAIR REQUIRED", ClassC},
		{"PARTIAL CEILING COLLAPSE", ClassC},
		{"STRUCTURAL CRACK IN FACADE", ClassC},
		{"HAZARDOUS MOLD CONDITION", ClassB},
		{"FIRE ESCAPE BLOCKED", ClassB},
		{"DEFECTIVE ELECTRICAL OUTLET", ClassB},
		{"PLUMBING LEAK UNDER SINK", ClassB},
		{"SAFETY RAIL LOOSE", ClassB},
		{"PEELING PAINT", ClassA},
		{"", ClassA},
		{"GENERAL MAINTENANCE", ClassA},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, c.Classify(tc.category), "category %q", tc.category)
	}
}

// "IMMEDIATELY HAZARDOUS" contains "HAZARDOUS"; the C rule must win
// because it is evaluated first.
func TestClassifyOrderDependence(t *testing.T) {
	c := NewClassifier(nil)
	assert.Equal(t, ClassC, c.Classify("IMMEDIATELY HAZARDOUS GAS LEAK"))
	assert.Equal(t, ClassB, c.Classify("HAZARDOUS GAS LEAK"))
}

func TestClassifyCaseInsensitive(t *testing.T) {
	c := NewClassifier(nil)
	assert.Equal(t, ClassC, c.Classify("structural damage to load bearing wall"))
	assert.Equal(t, ClassB, c.Classify("fire alarm missing"))
}

// Categories mentioning FIRE without COLLAPSE land in B, not C.
func TestClassifyFireWithoutCollapse(t *testing.T) {
	c := NewClassifier(nil)
	assert.Equal(t, ClassB, c.Classify("FIRE DOOR DOES NOT SELF CLOSE"))
	assert.Equal(t, ClassC, c.Classify("FIRE DAMAGE CAUSED PARTIAL COLLAPSE"))
}

func TestClassifierCustomRules(t *testing.T) {
	c := NewClassifier([]Rule{
		{Class: ClassC, Keywords: []string{"lead paint"}},
		{Class: ClassB, Keywords: []string{"  vermin  ", ""}},
	})
	assert.Equal(t, ClassC, c.Classify("LEAD PAINT IN UNIT 4B"))
	assert.Equal(t, ClassB, c.Classify("VERMIN SIGHTING"))
	assert.Equal(t, ClassA, c.Classify("IMMEDIATELY HAZARDOUS"))
}

func TestClassValid(t *testing.T) {
	assert.True(t, ClassA.Valid())
	assert.True(t, ClassC.Valid())
	assert.False(t, Class("D").Valid())
	assert.False(t, Class("").Valid())
}
