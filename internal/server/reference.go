package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) ListBoroughs(c *gin.Context) {
	boroughs, err := s.refrepo.ListBoroughs(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": boroughs})
}

func (s *Server) ListDatasets(c *gin.Context) {
	datasets, err := s.refrepo.ListDatasets(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": datasets})
}
