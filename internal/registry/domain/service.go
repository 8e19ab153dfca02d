package domain

import (
	"context"
	"errors"
	"time"
)

type Service interface {
	ListProjects(ctx context.Context) ([]ProjectResponse, error)
	CreateProject(ctx context.Context, req CreateProjectRequest) (*ProjectResponse, error)
	GeoGroups(ctx context.Context, code string) ([]GeoGroup, error)
	AddLogin(ctx context.Context, req AddLoginRequest) (*LoginResponse, error)
	RemoveLogin(ctx context.Context, code, loginID string) error
}

type CreateProjectRequest struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type AddLoginRequest struct {
	Project string `json:"-"`
	Geo     string `json:"geo"`
	Login   string `json:"login"`
}

type ProjectResponse struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type LoginResponse struct {
	ID      string `json:"id"`
	Project string `json:"project"`
	Geo     string `json:"geo"`
	Login   string `json:"login"`
}

// GeoGroup lists a GEO's logins, deepest deposit tier first.
type GeoGroup struct {
	Geo    string          `json:"geo"`
	Logins []LoginResponse `json:"logins"`
}

var (
	ErrInvalidProject  = errors.New("invalid_project")
	ErrInvalidName     = errors.New("invalid_name")
	ErrInvalidGeo      = errors.New("invalid_geo")
	ErrInvalidLogin    = errors.New("invalid_login")
	ErrInvalidID       = errors.New("invalid_id")
	ErrProjectNotFound = errors.New("project_not_found")
	ErrProjectExists   = errors.New("project_exists")
	ErrLoginExists     = errors.New("login_exists")
	ErrLoginNotFound   = errors.New("login_not_found")
)
