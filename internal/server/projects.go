package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	registrydomain "github.com/smallbiznis/paymatrix/internal/registry/domain"
)

type createProjectRequest struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type addLoginRequest struct {
	Geo   string `json:"geo"`
	Login string `json:"login"`
}

func (s *Server) ListProjects(c *gin.Context) {
	resp, err := s.registrySvc.ListProjects(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CreateProject(c *gin.Context) {
	var req createProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.registrySvc.CreateProject(c.Request.Context(), registrydomain.CreateProjectRequest{
		Code: strings.TrimSpace(req.Code),
		Name: strings.TrimSpace(req.Name),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) GeoGroups(c *gin.Context) {
	code := strings.TrimSpace(c.Param("code"))
	resp, err := s.registrySvc.GeoGroups(c.Request.Context(), code)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) AddLogin(c *gin.Context) {
	var req addLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.registrySvc.AddLogin(c.Request.Context(), registrydomain.AddLoginRequest{
		Project: strings.TrimSpace(c.Param("code")),
		Geo:     strings.TrimSpace(req.Geo),
		Login:   strings.TrimSpace(req.Login),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) RemoveLogin(c *gin.Context) {
	code := strings.TrimSpace(c.Param("code"))
	id := strings.TrimSpace(c.Param("id"))
	if err := s.registrySvc.RemoveLogin(c.Request.Context(), code, id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
