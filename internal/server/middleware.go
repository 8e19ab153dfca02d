package server

import (
	"bytes"
	"encoding/json"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/paymatrix/internal/observability/logger"
	registryservice "github.com/smallbiznis/paymatrix/internal/registry/service"
	"go.uber.org/zap"
)

const rateLimitReasonProjectRate = "project-rate"

type loadRateLimitKey struct {
	Project string `json:"project"`
	Env     string `json:"env"`
}

// LoadRateLimit throttles load requests per project and environment.
func (s *Server) LoadRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.loadLimiter.Enabled() {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		project, env, err := readLoadRateLimitKey(c)
		if err != nil {
			logger.FromContext(ctx).Warn("load rate limit read body failed", zap.Error(err))
			AbortWithError(c, invalidRequestError())
			return
		}
		if project == "" {
			// validation belongs to the handler
			c.Next()
			return
		}

		decision, err := s.loadLimiter.Allow(ctx, project, env)
		if err != nil {
			logger.FromContext(ctx).Warn("load rate limit check failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		if !decision.Allowed {
			endpoint := normalizeRateLimitEndpoint(c)
			logger.FromContext(ctx).Warn("load rate limit exceeded",
				zap.String("reason", rateLimitReasonProjectRate),
				zap.String("endpoint", endpoint),
				zap.String("project", project),
				zap.String("env", env),
			)
			s.obsMetrics.RecordRateLimitDenied(ctx, endpoint, rateLimitReasonProjectRate)

			c.Header("Retry-After", retryAfterSeconds(decision.RetryAfter.Seconds()))
			c.Header("X-Rate-Limited-Reason", rateLimitReasonProjectRate)
			AbortWithError(c, ErrRateLimited)
			return
		}

		c.Next()
	}
}

func retryAfterSeconds(seconds float64) string {
	if seconds < 1 {
		return "1"
	}
	return strconv.Itoa(int(math.Ceil(seconds)))
}

func readLoadRateLimitKey(c *gin.Context) (string, string, error) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return "", "", err
	}
	c.Request.Body = io.NopCloser(bytes.NewBuffer(body))
	if len(body) == 0 {
		return "", "", nil
	}

	var payload loadRateLimitKey
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", "", nil
	}

	return registryservice.NormalizeProject(payload.Project), strings.ToLower(strings.TrimSpace(payload.Env)), nil
}

func normalizeRateLimitEndpoint(c *gin.Context) string {
	if c == nil {
		return "unknown"
	}
	endpoint := strings.TrimSpace(c.FullPath())
	if endpoint == "" {
		endpoint = strings.TrimSpace(c.Request.URL.Path)
	}
	if endpoint == "" {
		endpoint = "unknown"
	}
	return endpoint
}
