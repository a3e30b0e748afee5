package server

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/sentinel/internal/providers/pdf"
)

func (s *Server) GetPropertyRisk(c *gin.Context) {
	bbl := bblParam(c)

	assessment, err := s.riskSvc.LatestAssessment(c.Request.Context(), bbl)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, assessment)
}

func (s *Server) GetViolationSummary(c *gin.Context) {
	bbl := bblParam(c)

	summary, err := s.ingestSvc.ViolationSummary(c.Request.Context(), bbl)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

func (s *Server) GetHeatRisk(c *gin.Context) {
	bbl := bblParam(c)

	tempF, err := parseOptionalFloat(c.Query("temp_f"))
	if err != nil {
		AbortWithError(c, newValidationError("temp_f", "invalid_temp_f", "temp_f must be a number"))
		return
	}

	heat, err := s.riskSvc.HeatRisk(c.Request.Context(), bbl, tempF)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, heat)
}

func (s *Server) GetBenchmark(c *gin.Context) {
	bbl := bblParam(c)

	benchmark, err := s.riskSvc.Benchmark(c.Request.Context(), bbl)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, benchmark)
}

// GetPropertyReport renders the one-page compliance PDF. The heat model
// runs without a temperature override; the report shows the ambient
// seasonal estimate.
func (s *Server) GetPropertyReport(c *gin.Context) {
	bbl := bblParam(c)
	ctx := c.Request.Context()

	assessment, err := s.riskSvc.LatestAssessment(ctx, bbl)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	building, err := s.riskSvc.BuildingContext(ctx, bbl)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	heat, err := s.riskSvc.HeatRisk(ctx, bbl, nil)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	data := pdf.PropertyReportData{
		BBL:         assessment.BBL,
		Address:     building.Address,
		Borough:     building.Borough,
		GeneratedAt: s.clock.Now().UTC().Format(reportTimestampLayout),

		RiskScore:         assessment.RiskScore,
		FixPriority:       string(assessment.FixPriority),
		Exposure:          assessment.Exposure,
		ViolationCount:    assessment.ViolationCount,
		OpenViolations:    assessment.OpenViolations,
		ClassA:            assessment.ClassA,
		ClassB:            assessment.ClassB,
		ClassC:            assessment.ClassC,
		OpenClassA:        assessment.OpenClassA,
		OpenClassB:        assessment.OpenClassB,
		OpenClassC:        assessment.OpenClassC,
		RelevantCount:     assessment.RelevantComplaints,
		DataFreshnessDate: assessment.DataFreshnessDate,
		DataCoverageDays:  assessment.DataCoverageDays,

		YearBuilt:             building.YearBuilt,
		YearEstimated:         building.YearEstimated,
		AgeDescription:        building.AgeDescription,
		CouncilDistrict:       building.CouncilDistrict,
		EnforcementMultiplier: building.EnforcementMultiplier,
		DistrictHotspot:       building.DistrictHotspot,

		HeatInSeason:        heat.InSeason,
		HeatLevel:           heat.Level,
		HeatUrgency:         heat.Urgency,
		HeatComplaints:      heat.HeatComplaints,
		HeatDaysToViolation: heat.DaysToViolation,
	}

	report, err := s.pdf.PropertyReport(ctx, data)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	servePDF(c, report, fmt.Sprintf("compliance_%s.pdf", assessment.BBL))
}

const reportTimestampLayout = "2006-01-02 15:04 MST"

func servePDF(c *gin.Context, report io.Reader, filename string) {
	doc, err := io.ReadAll(report)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/pdf", doc)
}

// bblParam pulls the BBL path segment and pins it on the gin context so
// the request logger can tag the line. Validation happens in the
// services, which share one parser.
func bblParam(c *gin.Context) string {
	bbl := strings.TrimSpace(c.Param("bbl"))
	c.Set("bbl", bbl)
	return bbl
}

func parseOptionalFloat(value string) (*float64, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}
