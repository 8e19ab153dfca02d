package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	Load(ctx context.Context, req LoadRequest) (*LoadResult, error)
	RetryFailed(ctx context.Context, runID snowflake.ID) (*LoadResult, error)
	GetRun(ctx context.Context, runID snowflake.ID) (*LoadResult, error)
	View(ctx context.Context, req ViewRequest) ([]GeoView, error)
	Latest(ctx context.Context, req LatestRequest) (*LoadResult, error)
}

// Gateway is the backend that talks to the payment gateway.
type Gateway interface {
	FetchMethods(ctx context.Context, ref LoginRef) (*LoginMethods, error)
	CheckLogin(ctx context.Context, ref LoginRef) (*AuthCheck, error)
}

// RunStore keeps load results and the latest published run per scope.
type RunStore interface {
	Publish(ctx context.Context, result *LoadResult) error
	Get(ctx context.Context, runID snowflake.ID) (*LoadResult, error)
	Latest(ctx context.Context, scope string) (*LoadResult, error)
}

type LoginRef struct {
	Project string `json:"project"`
	Geo     string `json:"geo"`
	Env     Env    `json:"env"`
	Login   string `json:"login"`
}

type LoadRequest struct {
	Project      string `json:"project"`
	Geo          string `json:"geo"`
	Env          Env    `json:"env"`
	FullProject  bool   `json:"full_project"`
	Login        string `json:"login,omitempty"`
	AddHardcoded bool   `json:"add_hardcoded"`
}

// LatestRequest addresses the scope a load request publishes into.
type LatestRequest struct {
	Project     string
	Geo         string
	Env         Env
	FullProject bool
}

type ViewRequest struct {
	RunID  snowflake.ID
	Geo    string
	Filter string
}

// GeoView is the ranked table of one GEO, shared by display and export.
type GeoView struct {
	Geo      string         `json:"geo"`
	Currency string         `json:"currency"`
	Env      Env            `json:"env"`
	Project  string         `json:"project"`
	Rows     []*MethodGroup `json:"rows"`
}

var (
	ErrInvalidProject  = errors.New("invalid_project")
	ErrInvalidGeo      = errors.New("invalid_geo")
	ErrInvalidEnv      = errors.New("invalid_env")
	ErrInvalidFilter   = errors.New("invalid_filter")
	ErrRunNotFound     = errors.New("run_not_found")
	ErrStaleRun        = errors.New("stale_run")
	ErrNoFailures      = errors.New("no_failures")
	ErrNoLogins        = errors.New("no_logins")
	ErrUnknownLogin    = errors.New("unknown_login")
	ErrRetryInProgress = errors.New("retry_in_progress")
)
