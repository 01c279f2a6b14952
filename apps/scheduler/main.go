package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/petlog/internal/cache"
	"github.com/smallbiznis/petlog/internal/clock"
	"github.com/smallbiznis/petlog/internal/config"
	"github.com/smallbiznis/petlog/internal/lock"
	"github.com/smallbiznis/petlog/internal/observability"
	"github.com/smallbiznis/petlog/internal/scheduler"
	"github.com/smallbiznis/petlog/internal/setting"
	"github.com/smallbiznis/petlog/internal/subscription"
	"github.com/smallbiznis/petlog/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		// Domain services required by scheduler
		cache.Module,
		lock.Module,
		setting.Module,
		subscription.Module,
		scheduler.Module,

		// This binary exists to sweep; SCHEDULER_ENABLED only gates the monolith.
		fx.Decorate(func(cfg scheduler.Config) scheduler.Config {
			cfg.Enabled = true
			return cfg
		}),
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(2)
	if err != nil {
		panic(err)
	}
	return node
}
