package server

import (
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/sentinel/internal/ranking"
)

func (s *Server) LatestExportCSV(c *gin.Context) {
	s.serveLatestExport(c, ranking.ExportCSV)
}

func (s *Server) LatestExportJSON(c *gin.Context) {
	s.serveLatestExport(c, ranking.ExportJSON)
}

// serveLatestExport streams the newest snapshot artifact straight from
// the export directory. The scheduler refreshes these after every
// succeeded run.
func (s *Server) serveLatestExport(c *gin.Context, kind ranking.ExportKind) {
	path, err := s.rankingSvc.LatestExport(kind)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.FileAttachment(path, filepath.Base(path))
}
