package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/paymatrix/internal/clock"
	"github.com/smallbiznis/paymatrix/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	keyLoadProject = "paymatrix:ratelimit:load:%s:%s"
	keyRetryRun    = "paymatrix:lock:retry:%s"
)

// LoadLimiter throttles load runs per project and environment so a burst of
// operator clicks cannot fan out into hundreds of backend logins.
type LoadLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
}

type Params struct {
	fx.In

	Cfg   config.Config
	Log   *zap.Logger
	Clock clock.Clock
	Redis *redis.Client `optional:"true"`
}

func NewLoadLimiter(p Params) *LoadLimiter {
	if p.Redis == nil || p.Cfg.LoadRate <= 0 || p.Cfg.LoadBurst <= 0 {
		p.Log.Info("load rate limiting disabled")
		return nil
	}
	return &LoadLimiter{
		bucket: NewTokenBucket(p.Redis),
		rate:   p.Cfg.LoadRate,
		burst:  p.Cfg.LoadBurst,
	}
}

func (l *LoadLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

func (l *LoadLimiter) Allow(ctx context.Context, project, env string) (Decision, error) {
	if !l.Enabled() {
		return Decision{Allowed: true}, nil
	}
	key := fmt.Sprintf(keyLoadProject, strings.TrimSpace(project), strings.TrimSpace(env))
	return l.bucket.Allow(ctx, key, l.rate, l.burst)
}

// NewLocker shares leases through redis when it is configured.
func NewLocker(p Params) Locker {
	if p.Redis != nil {
		return NewRedisLocker(p.Redis)
	}
	return NewLocalLocker(p.Clock)
}

// RetryLockKey is the lease a retry of runID holds while it runs.
func RetryLockKey(runID string) string {
	return fmt.Sprintf(keyRetryRun, runID)
}

// DefaultRetryLockTTL outlives one bounded retry round.
const DefaultRetryLockTTL = 5 * time.Minute
