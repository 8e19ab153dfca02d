package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	exportdomain "github.com/smallbiznis/paymatrix/internal/export/domain"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func bindExportRequest(c *gin.Context) (exportdomain.Request, bool) {
	var req exportdomain.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return req, false
	}
	if req.RunID <= 0 {
		AbortWithError(c, newValidationError("run_id", "invalid_run_id", "invalid run_id"))
		return req, false
	}
	req.Geo = strings.TrimSpace(req.Geo)
	req.Filter = strings.TrimSpace(req.Filter)
	c.Set("run_id", req.RunID.String())
	return req, true
}

func (s *Server) ExportXLSX(c *gin.Context) {
	req, ok := bindExportRequest(c)
	if !ok {
		return
	}

	workbook, err := s.exportSvc.XLSX(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+workbook.FileName+`"`)
	c.Data(http.StatusOK, xlsxContentType, workbook.Content)
}

func (s *Server) ExportSheets(c *gin.Context) {
	req, ok := bindExportRequest(c)
	if !ok {
		return
	}

	resp, err := s.exportSvc.Sheets(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) TodayExports(c *gin.Context) {
	resp, err := s.exportSvc.Today(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) LatestSheets(c *gin.Context) {
	resp, err := s.exportSvc.LatestSheets(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
