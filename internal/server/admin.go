package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	riskdomain "github.com/smallbiznis/sentinel/internal/risk/domain"
)

type refreshRequest struct {
	WindowDays int `json:"window_days"`
}

// TriggerRefresh runs the full pipeline synchronously and returns the
// finished run row. Concurrent triggers surface as a conflict.
func (s *Server) TriggerRefresh(c *gin.Context) {
	var req refreshRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	run, err := s.riskSvc.RunAssessment(c.Request.Context(), riskdomain.RunRequest{
		Trigger:    "manual",
		WindowDays: req.WindowDays,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, run)
}

func (s *Server) ListRuns(c *gin.Context) {
	var req riskdomain.ListRunsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	runs, err := s.riskSvc.ListRuns(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": runs})
}

func (s *Server) GetRun(c *gin.Context) {
	runID := strings.TrimSpace(c.Param("id"))

	run, err := s.riskSvc.GetRun(c.Request.Context(), runID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, run)
}
