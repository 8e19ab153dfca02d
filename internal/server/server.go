package server

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/paymatrix/internal/config"
	"github.com/smallbiznis/paymatrix/internal/export"
	exportdomain "github.com/smallbiznis/paymatrix/internal/export/domain"
	"github.com/smallbiznis/paymatrix/internal/gateway"
	"github.com/smallbiznis/paymatrix/internal/methods"
	methodsdomain "github.com/smallbiznis/paymatrix/internal/methods/domain"
	"github.com/smallbiznis/paymatrix/internal/observability"
	obsmiddleware "github.com/smallbiznis/paymatrix/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/paymatrix/internal/observability/metrics"
	obstracing "github.com/smallbiznis/paymatrix/internal/observability/tracing"
	"github.com/smallbiznis/paymatrix/internal/ratelimit"
	"github.com/smallbiznis/paymatrix/internal/registry"
	registrydomain "github.com/smallbiznis/paymatrix/internal/registry/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	gateway.Module,
	registry.Module,
	methods.Module,
	export.Module,
	ratelimit.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(httpMetrics.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine      *gin.Engine
	cfg         config.Config
	registrySvc registrydomain.Service
	methodsSvc  methodsdomain.Service
	exportSvc   exportdomain.Service
	loadLimiter *ratelimit.LoadLimiter
	obsMetrics  *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Cfg         config.Config
	RegistrySvc registrydomain.Service
	MethodsSvc  methodsdomain.Service
	ExportSvc   exportdomain.Service
	LoadLimiter *ratelimit.LoadLimiter `optional:"true"`
	ObsMetrics  *obsmetrics.Metrics    `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:      p.Gin,
		cfg:         p.Cfg,
		registrySvc: p.RegistrySvc,
		methodsSvc:  p.MethodsSvc,
		exportSvc:   p.ExportSvc,
		loadLimiter: p.LoadLimiter,
		obsMetrics:  p.ObsMetrics,
	}

	svc.registerAPIRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- Projects --------
	api.GET("/projects", s.ListProjects)
	api.POST("/projects", s.CreateProject)
	api.GET("/projects/:code/geo-groups", s.GeoGroups)
	api.POST("/projects/:code/logins", s.AddLogin)
	api.DELETE("/projects/:code/logins/:id", s.RemoveLogin)

	// -------- Methods --------
	api.POST("/methods/load", s.LoadRateLimit(), s.LoadMethods)
	api.GET("/methods/latest", s.LatestRun)
	api.GET("/methods/runs/:id", s.GetRun)
	api.POST("/methods/runs/:id/retry", s.RetryRun)

	// -------- Exports --------
	api.POST("/exports/xlsx", s.ExportXLSX)
	api.POST("/exports/sheets", s.ExportSheets)
	api.GET("/exports/today", s.TodayExports)
	api.GET("/exports/latest-sheets", s.LatestSheets)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		// static assets of the dashboard build
		if fileExists("./public", c.Request.URL.Path) {
			c.File("./public" + c.Request.URL.Path)
			return
		}
		if fileExists("./public", "/index.html") {
			c.File("./public/index.html")
			return
		}
		AbortWithError(c, ErrNotFound)
	})
}

func fileExists(publicDir, reqPath string) bool {
	clean := filepath.Clean(reqPath)

	// prevent path traversal
	if clean == "." || clean == "/" || clean == ".." {
		return false
	}

	fullPath := filepath.Join(publicDir, clean)

	info, err := os.Stat(fullPath)
	if err != nil {
		return false
	}

	return !info.IsDir()
}
