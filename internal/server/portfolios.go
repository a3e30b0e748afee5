package server

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"
	portfoliodomain "github.com/smallbiznis/sentinel/internal/portfolio/domain"
	"github.com/smallbiznis/sentinel/internal/providers/pdf"
	riskdomain "github.com/smallbiznis/sentinel/internal/risk/domain"
)

func (s *Server) ListPortfolios(c *gin.Context) {
	portfolios, err := s.portfolioSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": portfolios})
}

func (s *Server) CreatePortfolio(c *gin.Context) {
	var req portfoliodomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	created, err := s.portfolioSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, created)
}

func (s *Server) GetPortfolio(c *gin.Context) {
	slug := strings.TrimSpace(c.Param("slug"))

	found, err := s.portfolioSvc.Get(c.Request.Context(), slug)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, found)
}

func (s *Server) GetPortfolioRisk(c *gin.Context) {
	slug := strings.TrimSpace(c.Param("slug"))

	summary, err := s.portfolioSvc.RiskSummary(c.Request.Context(), slug)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

// GetPortfolioReport renders the portfolio outreach packet: headline
// numbers, the priority breakdown, and every building ranked worst
// first.
func (s *Server) GetPortfolioReport(c *gin.Context) {
	slug := strings.TrimSpace(c.Param("slug"))
	ctx := c.Request.Context()

	found, err := s.portfolioSvc.Get(ctx, slug)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	summary, err := s.portfolioSvc.RiskSummary(ctx, slug)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	properties := make([]pdf.PropertyLine, 0, len(found.BBLs))
	for _, bbl := range found.BBLs {
		assessment, err := s.riskSvc.LatestAssessment(ctx, bbl)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		properties = append(properties, pdf.PropertyLine{
			BBL:         assessment.BBL,
			RiskScore:   assessment.RiskScore,
			FixPriority: string(assessment.FixPriority),
		})
	}
	sort.SliceStable(properties, func(i, j int) bool {
		return properties[i].RiskScore > properties[j].RiskScore
	})

	data := pdf.PortfolioReportData{
		Name:        summary.Name,
		Slug:        summary.Slug,
		GeneratedAt: s.clock.Now().UTC().Format(reportTimestampLayout),

		Buildings:        summary.Buildings,
		ScoredBuildings:  summary.ScoredBuildings,
		TotalExposure:    summary.TotalExposure,
		AverageRiskScore: summary.AverageRiskScore,

		Priorities: priorityBreakdown(summary.Priorities),
		Properties: properties,
	}

	report, err := s.pdf.PortfolioReport(ctx, data)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	servePDF(c, report, fmt.Sprintf("portfolio_%s.pdf", summary.Slug))
}

// priorityBreakdown flattens the priority counts into the fixed
// worst-first order the report table shows.
func priorityBreakdown(priorities map[riskdomain.Priority]int) []pdf.PriorityCount {
	ordered := []riskdomain.Priority{
		riskdomain.PriorityCritical,
		riskdomain.PriorityHigh,
		riskdomain.PriorityMedium,
		riskdomain.PriorityLow,
		riskdomain.PriorityClean,
	}

	out := make([]pdf.PriorityCount, 0, len(ordered))
	for _, priority := range ordered {
		out = append(out, pdf.PriorityCount{
			Label: string(priority),
			Count: priorities[priority],
		})
	}
	return out
}
