package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/paymatrix/internal/cache"
	"github.com/smallbiznis/paymatrix/internal/clock"
	"github.com/smallbiznis/paymatrix/internal/config"
	"github.com/smallbiznis/paymatrix/internal/migration"
	"github.com/smallbiznis/paymatrix/internal/observability"
	"github.com/smallbiznis/paymatrix/internal/seed"
	"github.com/smallbiznis/paymatrix/internal/server"
	"github.com/smallbiznis/paymatrix/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		cache.Module,
		clock.Module,
		migration.Module,

		// HTTP API and the domains it serves
		server.Module,
		seed.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
