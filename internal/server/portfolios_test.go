package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	portfoliodomain "github.com/smallbiznis/sentinel/internal/portfolio/domain"
	riskdomain "github.com/smallbiznis/sentinel/internal/risk/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreatePortfolio(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(http.MethodPost, "/v1/portfolios", `{"name":"Brooklyn Holdings","bbls":["3012340056","3012340057"]}`)

	require.Equal(t, http.StatusCreated, resp.Code)
	require.Len(t, ts.portfolio.createReqs, 1)
	assert.Equal(t, "Brooklyn Holdings", ts.portfolio.createReqs[0].Name)
	assert.Len(t, ts.portfolio.createReqs[0].BBLs, 2)
}

func TestCreatePortfolioRequiresBuildings(t *testing.T) {
	ts := newTestServer(t)
	ts.portfolio.createErr = portfoliodomain.ErrNoBuildings

	resp := ts.do(http.MethodPost, "/v1/portfolios", `{"name":"Empty"}`)

	require.Equal(t, http.StatusBadRequest, resp.Code)
	payload := decodeError(t, resp)
	assert.Equal(t, "no_buildings", payload.Code)
	require.Len(t, payload.Details, 1)
	assert.Equal(t, "bbls", payload.Details[0].Field)
}

func TestGetPortfolioNotFound(t *testing.T) {
	ts := newTestServer(t)
	ts.portfolio.getErr = portfoliodomain.ErrNotFound

	resp := ts.do(http.MethodGet, "/v1/portfolios/missing", "")

	require.Equal(t, http.StatusNotFound, resp.Code)
	assert.Equal(t, "not_found", decodeError(t, resp).Type)
}

func TestGetPortfolioRiskSummary(t *testing.T) {
	ts := newTestServer(t)
	ts.portfolio.summary = &portfoliodomain.RiskSummary{
		Slug:            "brooklyn-holdings",
		Name:            "Brooklyn Holdings",
		Buildings:       2,
		ScoredBuildings: 2,
		TotalExposure:   54900,
		Priorities: map[riskdomain.Priority]int{
			riskdomain.PriorityHigh:  1,
			riskdomain.PriorityClean: 1,
		},
	}

	resp := ts.do(http.MethodGet, "/v1/portfolios/brooklyn-holdings/risk", "")

	require.Equal(t, http.StatusOK, resp.Code)
	var body portfoliodomain.RiskSummary
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Buildings)
	assert.Equal(t, int64(54900), body.TotalExposure)
	assert.Equal(t, 1, body.Priorities[riskdomain.PriorityHigh])
}

func TestGetPortfolioReportRanksWorstFirst(t *testing.T) {
	ts := newTestServer(t)
	ts.portfolio.portfolio = &portfoliodomain.Portfolio{
		Slug: "brooklyn-holdings",
		BBLs: []string{"3000010001", "3000010002"},
	}
	ts.portfolio.summary = &portfoliodomain.RiskSummary{
		Slug:      "brooklyn-holdings",
		Name:      "Brooklyn Holdings",
		Buildings: 2,
	}
	scores := map[string]float64{"3000010001": 1.5, "3000010002": 9.0}
	ts.risk.assessment = nil
	ts.risk.assessFunc = func(bbl string) (*riskdomain.RiskAssessment, error) {
		return &riskdomain.RiskAssessment{
			BBL:         bbl,
			RiskScore:   scores[bbl],
			FixPriority: riskdomain.PriorityLow,
		}, nil
	}

	resp := ts.do(http.MethodGet, "/v1/portfolios/brooklyn-holdings/report.pdf", "")

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "application/pdf", resp.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(resp.Body.String(), "%PDF"))

	require.Len(t, ts.pdf.portfolioCalls, 1)
	data := ts.pdf.portfolioCalls[0]
	require.Len(t, data.Properties, 2)
	assert.Equal(t, "3000010002", data.Properties[0].BBL, "highest risk first")
	assert.Equal(t, 9.0, data.Properties[0].RiskScore)

	require.Len(t, data.Priorities, 5)
	assert.Equal(t, string(riskdomain.PriorityCritical), data.Priorities[0].Label)
}
