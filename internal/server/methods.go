package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	methodsdomain "github.com/smallbiznis/paymatrix/internal/methods/domain"
	"github.com/smallbiznis/paymatrix/internal/methods/engine"
)

type loadMethodsRequest struct {
	Project      string `json:"project"`
	Geo          string `json:"geo"`
	Env          string `json:"env"`
	FullProject  bool   `json:"full_project"`
	Login        string `json:"login"`
	AddHardcoded bool   `json:"add_hardcoded"`
	Filter       string `json:"filter"`
}

type runSummary struct {
	RunID       snowflake.ID                 `json:"run_id"`
	ParentRunID snowflake.ID                 `json:"parent_run_id,omitempty"`
	Project     string                       `json:"project"`
	Env         methodsdomain.Env            `json:"env"`
	FullProject bool                         `json:"full_project"`
	Geos        []string                     `json:"geos"`
	Failures    []methodsdomain.LoginFailure `json:"failures"`
	Status      string                       `json:"status"`
	StartedAt   time.Time                    `json:"started_at"`
	CompletedAt time.Time                    `json:"completed_at"`
}

type runResponse struct {
	Run   runSummary              `json:"run"`
	Views []methodsdomain.GeoView `json:"views"`
}

func (s *Server) LoadMethods(c *gin.Context) {
	var req loadMethodsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if !engine.ValidFilter(req.Filter) {
		AbortWithError(c, methodsdomain.ErrInvalidFilter)
		return
	}

	result, err := s.methodsSvc.Load(c.Request.Context(), methodsdomain.LoadRequest{
		Project:      strings.TrimSpace(req.Project),
		Geo:          strings.TrimSpace(req.Geo),
		Env:          methodsdomain.Env(strings.ToLower(strings.TrimSpace(req.Env))),
		FullProject:  req.FullProject,
		Login:        strings.TrimSpace(req.Login),
		AddHardcoded: req.AddHardcoded,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.Set("run_id", result.RunID.String())

	s.respondRun(c, result, "", req.Filter)
}

func (s *Server) LatestRun(c *gin.Context) {
	var query struct {
		Project     string `form:"project"`
		Geo         string `form:"geo"`
		Env         string `form:"env"`
		FullProject string `form:"full_project"`
		Filter      string `form:"filter"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	fullProject, err := parseOptionalBool(query.FullProject)
	if err != nil {
		AbortWithError(c, newValidationError("full_project", "invalid_full_project", "invalid full_project"))
		return
	}

	result, err := s.methodsSvc.Latest(c.Request.Context(), methodsdomain.LatestRequest{
		Project:     strings.TrimSpace(query.Project),
		Geo:         strings.TrimSpace(query.Geo),
		Env:         methodsdomain.Env(strings.ToLower(strings.TrimSpace(query.Env))),
		FullProject: fullProject != nil && *fullProject,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.Set("run_id", result.RunID.String())

	s.respondRun(c, result, "", query.Filter)
}

func (s *Server) GetRun(c *gin.Context) {
	runID, err := parseRunID(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("run_id", "invalid_run_id", "invalid run_id"))
		return
	}

	result, err := s.methodsSvc.GetRun(c.Request.Context(), runID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.Set("run_id", result.RunID.String())

	s.respondRun(c, result, c.Query("geo"), c.Query("filter"))
}

func (s *Server) RetryRun(c *gin.Context) {
	runID, err := parseRunID(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("run_id", "invalid_run_id", "invalid run_id"))
		return
	}

	if !engine.ValidFilter(c.Query("filter")) {
		AbortWithError(c, methodsdomain.ErrInvalidFilter)
		return
	}

	result, err := s.methodsSvc.RetryFailed(c.Request.Context(), runID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.Set("run_id", result.RunID.String())

	s.respondRun(c, result, "", c.Query("filter"))
}

func (s *Server) respondRun(c *gin.Context, result *methodsdomain.LoadResult, geo, filter string) {
	views, err := s.methodsSvc.View(c.Request.Context(), methodsdomain.ViewRequest{
		RunID:  result.RunID,
		Geo:    strings.TrimSpace(geo),
		Filter: strings.TrimSpace(filter),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": runResponse{
		Run:   toRunSummary(result),
		Views: views,
	}})
}

func toRunSummary(result *methodsdomain.LoadResult) runSummary {
	failures := result.Failures
	if failures == nil {
		failures = []methodsdomain.LoginFailure{}
	}
	return runSummary{
		RunID:       result.RunID,
		ParentRunID: result.ParentRunID,
		Project:     result.Project,
		Env:         result.Env,
		FullProject: result.FullProject,
		Geos:        result.Geos,
		Failures:    failures,
		Status:      result.Status(),
		StartedAt:   result.StartedAt,
		CompletedAt: result.CompletedAt,
	}
}
