package repository

import (
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/paymatrix/internal/clock"
	"github.com/smallbiznis/paymatrix/internal/config"
	"github.com/smallbiznis/paymatrix/internal/methods/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Cfg   config.Config
	Log   *zap.Logger
	Clock clock.Clock
	Redis *redis.Client `optional:"true"`
}

// Provide picks the redis store when a client is available.
func Provide(p Params) domain.RunStore {
	if p.Redis != nil {
		p.Log.Info("run store: redis", zap.Duration("ttl", p.Cfg.RunTTL))
		return NewRedisStore(p.Redis, p.Cfg.RunTTL)
	}
	p.Log.Info("run store: in-memory", zap.Duration("ttl", p.Cfg.RunTTL))
	return NewMemoryStore(p.Clock, p.Cfg.RunTTL)
}
