package pdf

import (
	"context"
	"io"
)

// Provider renders downloadable compliance documents.
type Provider interface {
	PropertyReport(ctx context.Context, data PropertyReportData) (io.Reader, error)
	PortfolioReport(ctx context.Context, data PortfolioReportData) (io.Reader, error)
}
