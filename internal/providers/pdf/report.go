package pdf

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

// PropertyReportData is everything the one-page compliance report shows
// for a single property.
type PropertyReportData struct {
	BBL         string
	Address     string
	Borough     string
	GeneratedAt string

	RiskScore         float64
	FixPriority       string
	Exposure          int64
	ViolationCount    int
	OpenViolations    int
	ClassA            int
	ClassB            int
	ClassC            int
	OpenClassA        int
	OpenClassB        int
	OpenClassC        int
	RelevantCount     int
	DataFreshnessDate string
	DataCoverageDays  int

	YearBuilt             int
	YearEstimated         bool
	AgeDescription        string
	CouncilDistrict       string
	EnforcementMultiplier float64
	DistrictHotspot       bool

	HeatInSeason        bool
	HeatLevel           string
	HeatUrgency         float64
	HeatComplaints      int
	HeatDaysToViolation int
}

type PDFProvider struct{}

func New() Provider {
	return &PDFProvider{}
}

func (p *PDFProvider) PropertyReport(ctx context.Context, data PropertyReportData) (io.Reader, error) {
	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(12,
		text.NewCol(12, "Property Compliance Report", props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
	)

	address := data.Address
	if address == "" {
		address = "Address on file with city records"
	}
	m.AddRow(22,
		col.New(7).Add(
			text.New("BBL: "+data.BBL, props.Text{Style: fontstyle.Bold}),
			text.New(address, props.Text{Top: 5}),
			text.New(data.Borough, props.Text{Top: 10}),
		),
		col.New(5).Add(
			text.New("Generated: "+data.GeneratedAt, props.Text{Align: align.Right}),
			text.New(fmt.Sprintf("Data through: %s (%d day window)", data.DataFreshnessDate, data.DataCoverageDays), props.Text{Top: 5, Align: align.Right, Size: 9}),
		),
	)

	m.AddRow(16,
		col.New(4).Add(
			text.New("Risk score", props.Text{Size: 9}),
			text.New(fmt.Sprintf("%.2f", data.RiskScore), props.Text{Top: 4, Size: 16, Style: fontstyle.Bold}),
		),
		col.New(4).Add(
			text.New("Fix priority", props.Text{Size: 9}),
			text.New(data.FixPriority, props.Text{Top: 4, Size: 16, Style: fontstyle.Bold}),
		),
		col.New(4).Add(
			text.New("Estimated fine exposure", props.Text{Size: 9}),
			text.New(fmt.Sprintf("$%d", data.Exposure), props.Text{Top: 4, Size: 16, Style: fontstyle.Bold}),
		),
	)

	m.AddRow(8,
		text.NewCol(12, "Violations", props.Text{Size: 12, Style: fontstyle.Bold, Top: 2}),
	)
	m.AddRow(8,
		text.NewCol(4, "Class", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(4, "Total", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(4, "Open", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	for _, row := range []struct {
		label string
		total int
		open  int
	}{
		{"C (immediately hazardous)", data.ClassC, data.OpenClassC},
		{"B (hazardous)", data.ClassB, data.OpenClassB},
		{"A (non-hazardous)", data.ClassA, data.OpenClassA},
	} {
		m.AddRow(7,
			text.NewCol(4, row.label, props.Text{Size: 9}),
			text.NewCol(4, fmt.Sprintf("%d", row.total), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(4, fmt.Sprintf("%d", row.open), props.Text{Size: 9, Align: align.Right}),
		)
	}
	m.AddRow(7,
		text.NewCol(4, "All classes", props.Text{Size: 9, Style: fontstyle.Bold}),
		text.NewCol(4, fmt.Sprintf("%d", data.ViolationCount), props.Text{Size: 9, Style: fontstyle.Bold, Align: align.Right}),
		text.NewCol(4, fmt.Sprintf("%d", data.OpenViolations), props.Text{Size: 9, Style: fontstyle.Bold, Align: align.Right}),
	)
	m.AddRow(7,
		text.NewCol(8, "Relevant 311 complaints (heat, plumbing)", props.Text{Size: 9}),
		text.NewCol(4, fmt.Sprintf("%d", data.RelevantCount), props.Text{Size: 9, Align: align.Right}),
	)

	m.AddRow(8,
		text.NewCol(12, "Building profile", props.Text{Size: 12, Style: fontstyle.Bold, Top: 2}),
	)
	yearLabel := fmt.Sprintf("Built %d", data.YearBuilt)
	if data.YearEstimated {
		yearLabel += " (estimated from tax block)"
	}
	m.AddRow(14,
		col.New(6).Add(
			text.New(yearLabel, props.Text{Size: 9}),
			text.New(data.AgeDescription, props.Text{Top: 4, Size: 9}),
		),
		col.New(6).Add(
			text.New(enforcementLabel(data.EnforcementMultiplier, data.DistrictHotspot, data.CouncilDistrict), props.Text{Size: 9}),
		),
	)

	m.AddRow(8,
		text.NewCol(12, "Seasonal heat risk", props.Text{Size: 12, Style: fontstyle.Bold, Top: 2}),
	)
	m.AddRow(14,
		col.New(12).Add(
			text.New(heatLabel(data), props.Text{Size: 9}),
			text.New(fmt.Sprintf("%d heat complaints in the last 30 days", data.HeatComplaints), props.Text{Top: 4, Size: 9}),
		),
	)

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}

	return bytes.NewReader(doc.GetBytes()), nil
}

func enforcementLabel(multiplier float64, hotspot bool, district string) string {
	if hotspot {
		return fmt.Sprintf("Inspection hotspot (%s), enforcement x%.1f", district, multiplier)
	}
	return fmt.Sprintf("Borough enforcement baseline x%.1f", multiplier)
}

func heatLabel(data PropertyReportData) string {
	if !data.HeatInSeason {
		return fmt.Sprintf("Off season. Level %s, urgency %.1f", data.HeatLevel, data.HeatUrgency)
	}
	return fmt.Sprintf("Heat season. Level %s, urgency %.1f, inspect within %d days", data.HeatLevel, data.HeatUrgency, data.HeatDaysToViolation)
}
