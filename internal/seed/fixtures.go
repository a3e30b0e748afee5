package seed

import "github.com/smallbiznis/sentinel/internal/severity"

type demoBuilding struct {
	bbl                string
	address            string
	unitCount          int
	yearBuilt          int
	district           string
	lastInspectionDays int
	violations         []demoViolation
	complaints         []demoComplaint
}

// demoViolation describes one seeded violation. ageDays is the event age
// relative to seeding time; -1 means the source date is unknown.
type demoViolation struct {
	source   string
	category string
	class    severity.Class
	open     bool
	ageDays  int
}

type demoComplaint struct {
	category string
	relevant bool
	open     bool
	ageDays  int
}

// demoBuildings returns the fixed demo portfolio. Category strings are
// chosen so the keyword classifier reproduces the assigned class if the
// batch is ever re-normalized from its raw payloads.
func demoBuildings() []demoBuilding {
	return []demoBuilding{
		{
			// Open class C heat violation plus a heat complaint cluster
			// inside an inspection hotspot. Lands in the CRITICAL tier.
			bbl:                "3012650001",
			address:            "123 Main Street, Brooklyn",
			unitCount:          24,
			yearBuilt:          1931,
			district:           "brooklyn_council_36",
			lastInspectionDays: 12,
			violations: []demoViolation{
				{source: "hpd", category: "IMMEDIATELY HAZARDOUS: HEAT AND HOT WATER NOT PROVIDED", class: severity.ClassC, open: true, ageDays: 12},
				{source: "hpd", category: "HAZARDOUS: DEFECTIVE PLUMBING FIXTURE IN BATHROOM", class: severity.ClassB, open: true, ageDays: 45},
				{source: "dob", category: "ELECTRICAL WIRING NOT UP TO CODE", class: severity.ClassB, open: false, ageDays: 120},
				{source: "hpd", category: "PAINT PEELING IN APARTMENT 2A", class: severity.ClassA, open: false, ageDays: 200},
			},
			complaints: []demoComplaint{
				{category: "HEAT/HOT WATER", relevant: true, open: true, ageDays: 5},
				{category: "HEAT/HOT WATER", relevant: true, open: true, ageDays: 9},
				{category: "HEAT/HOT WATER", relevant: true, open: false, ageDays: 21},
				{category: "NOISE - RESIDENTIAL", relevant: false, open: false, ageDays: 60},
			},
		},
		{
			// Three open class B violations, no C. Lands in the HIGH tier.
			bbl:                "1008760012",
			address:            "245 West 108th Street, Manhattan",
			unitCount:          48,
			yearBuilt:          1925,
			district:           "manhattan_council_7",
			lastInspectionDays: 40,
			violations: []demoViolation{
				{source: "hpd", category: "HAZARDOUS: FIRE ESCAPE OBSTRUCTED", class: severity.ClassB, open: true, ageDays: 30},
				{source: "hpd", category: "PLUMBING LEAK AT CEILING OF APARTMENT 5C", class: severity.ClassB, open: true, ageDays: 75},
				{source: "dob", category: "ELECTRICAL OUTLET MISSING COVER PLATE", class: severity.ClassB, open: true, ageDays: 140},
				{source: "hpd", category: "WINDOW GUARD NOTICE NOT FILED", class: severity.ClassA, open: true, ageDays: 90},
			},
			complaints: []demoComplaint{
				{category: "PLUMBING", relevant: true, open: true, ageDays: 40},
			},
		},
		{
			// Six open violations but only two class B. Lands in the
			// MEDIUM tier on open volume.
			bbl:       "2035890045",
			address:   "812 East Tremont Avenue, Bronx",
			unitCount: 36,
			yearBuilt: 1938,
			district:  "bronx_council_15",
			violations: []demoViolation{
				{source: "hpd", category: "HAZARDOUS: BROKEN RADIATOR VALVE", class: severity.ClassB, open: true, ageDays: 20},
				{source: "dob", category: "PLUMBING VENT PIPE DISCONNECTED", class: severity.ClassB, open: true, ageDays: 55},
				{source: "hpd", category: "PAINT PEELING IN PUBLIC HALLWAY", class: severity.ClassA, open: true, ageDays: 80},
				{source: "hpd", category: "MISSING APARTMENT NUMBER ON DOOR", class: severity.ClassA, open: true, ageDays: 110},
				{source: "hpd", category: "WINDOW FRAME OUT OF REPAIR", class: severity.ClassA, open: true, ageDays: 150},
				{source: "dob", category: "POSTED OCCUPANCY NOTICE MISSING", class: severity.ClassA, open: true, ageDays: 190},
			},
			complaints: []demoComplaint{
				{category: "HEAT/HOT WATER", relevant: true, open: true, ageDays: 25},
				{category: "GENERAL CONSTRUCTION", relevant: false, open: false, ageDays: 95},
			},
		},
		{
			// Fully resolved history plus one undated record. Lands in
			// the LOW tier.
			bbl:                "4044560023",
			address:            "37-12 Broadway, Queens",
			unitCount:          12,
			yearBuilt:          1952,
			district:           "queens_council_22",
			lastInspectionDays: 210,
			violations: []demoViolation{
				{source: "hpd", category: "HAZARDOUS: DEFECTIVE SMOKE PIPE", class: severity.ClassB, open: false, ageDays: 260},
				{source: "hpd", category: "PAINT PEELING IN APARTMENT 1B", class: severity.ClassA, open: false, ageDays: 300},
				{source: "dob", category: "PERMIT PLACARD NOT DISPLAYED", class: severity.ClassA, open: false, ageDays: 330},
				{source: "hpd", category: "MAILBOX LOCK OUT OF REPAIR", class: severity.ClassA, open: false, ageDays: -1},
			},
		},
		{
			// No records at all. Lands in the CLEAN tier.
			bbl:       "3071230099",
			address:   "1640 Flatbush Avenue, Brooklyn",
			unitCount: 8,
			yearBuilt: 1965,
		},
		{
			// Single open class A. Lands in the LOW tier with open work.
			bbl:       "5012340067",
			address:   "88 Victory Boulevard, Staten Island",
			unitCount: 6,
			yearBuilt: 1978,
			violations: []demoViolation{
				{source: "hpd", category: "STREET NUMBER NOT DISPLAYED", class: severity.ClassA, open: true, ageDays: 65},
			},
		},
		{
			// Pre-war tower with an active heat complaint cluster for the
			// seasonal model. Lands in the CRITICAL tier.
			bbl:                "2029180076",
			address:            "2110 Grand Concourse, Bronx",
			unitCount:          60,
			yearBuilt:          1927,
			district:           "bronx_council_8",
			lastInspectionDays: 6,
			violations: []demoViolation{
				{source: "hpd", category: "IMMEDIATELY HAZARDOUS: NO HEAT BUILDING WIDE", class: severity.ClassC, open: true, ageDays: 8},
				{source: "hpd", category: "HAZARDOUS: BOILER SAFETY DEVICE DEFECTIVE", class: severity.ClassB, open: true, ageDays: 35},
			},
			complaints: []demoComplaint{
				{category: "HEAT/HOT WATER", relevant: true, open: true, ageDays: 3},
				{category: "HEAT/HOT WATER", relevant: true, open: true, ageDays: 7},
				{category: "HEAT/HOT WATER", relevant: true, open: true, ageDays: 14},
				{category: "HEAT/HOT WATER", relevant: true, open: false, ageDays: 22},
			},
		},
	}
}
