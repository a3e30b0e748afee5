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

// PortfolioReportData summarizes one portfolio for outreach packets.
type PortfolioReportData struct {
	Name        string
	Slug        string
	GeneratedAt string

	Buildings        int
	ScoredBuildings  int
	TotalExposure    int64
	AverageRiskScore float64

	Priorities []PriorityCount
	Properties []PropertyLine
}

// PriorityCount is one row of the fix-priority breakdown.
type PriorityCount struct {
	Label string
	Count int
}

// PropertyLine is one ranked building in the portfolio table.
type PropertyLine struct {
	BBL         string
	RiskScore   float64
	FixPriority string
}

func (p *PDFProvider) PortfolioReport(ctx context.Context, data PortfolioReportData) (io.Reader, error) {
	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(12,
		text.NewCol(12, "Portfolio Risk Summary", props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
	)

	m.AddRow(16,
		col.New(7).Add(
			text.New(data.Name, props.Text{Style: fontstyle.Bold, Size: 12}),
			text.New(data.Slug, props.Text{Top: 6, Size: 9}),
		),
		col.New(5).Add(
			text.New("Generated: "+data.GeneratedAt, props.Text{Align: align.Right}),
		),
	)

	m.AddRow(16,
		col.New(3).Add(
			text.New("Buildings", props.Text{Size: 9}),
			text.New(fmt.Sprintf("%d", data.Buildings), props.Text{Top: 4, Size: 14, Style: fontstyle.Bold}),
		),
		col.New(3).Add(
			text.New("Scored", props.Text{Size: 9}),
			text.New(fmt.Sprintf("%d", data.ScoredBuildings), props.Text{Top: 4, Size: 14, Style: fontstyle.Bold}),
		),
		col.New(3).Add(
			text.New("Avg risk score", props.Text{Size: 9}),
			text.New(fmt.Sprintf("%.2f", data.AverageRiskScore), props.Text{Top: 4, Size: 14, Style: fontstyle.Bold}),
		),
		col.New(3).Add(
			text.New("Total exposure", props.Text{Size: 9}),
			text.New(fmt.Sprintf("$%d", data.TotalExposure), props.Text{Top: 4, Size: 14, Style: fontstyle.Bold}),
		),
	)

	m.AddRow(8,
		text.NewCol(12, "Fix priorities", props.Text{Size: 12, Style: fontstyle.Bold, Top: 2}),
	)
	for _, priority := range data.Priorities {
		m.AddRow(7,
			text.NewCol(6, priority.Label, props.Text{Size: 9}),
			text.NewCol(6, fmt.Sprintf("%d", priority.Count), props.Text{Size: 9, Align: align.Right}),
		)
	}

	m.AddRow(8,
		text.NewCol(12, "Highest-risk buildings", props.Text{Size: 12, Style: fontstyle.Bold, Top: 2}),
	)
	m.AddRow(8,
		text.NewCol(6, "BBL", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(3, "Risk score", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(3, "Priority", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	for _, property := range data.Properties {
		m.AddRow(7,
			text.NewCol(6, property.BBL, props.Text{Size: 9}),
			text.NewCol(3, fmt.Sprintf("%.2f", property.RiskScore), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(3, property.FixPriority, props.Text{Size: 9, Align: align.Right}),
		)
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}

	return bytes.NewReader(doc.GetBytes()), nil
}
