package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/petlog/internal/clock"
	"github.com/smallbiznis/petlog/internal/config"
	"github.com/smallbiznis/petlog/internal/migration"
	"github.com/smallbiznis/petlog/internal/observability"
	"github.com/smallbiznis/petlog/internal/scheduler"
	"github.com/smallbiznis/petlog/internal/server"
	"github.com/smallbiznis/petlog/pkg/db"
	"go.uber.org/fx"
)

// Single-binary deployment: HTTP API, admin API and the expiry sweeper.
func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// Billing domains + HTTP
		server.Module,
		scheduler.Module,

		fx.Invoke(func(s *server.Server) {
			s.RegisterRoutes()
		}),
		fx.Invoke(server.RunHTTP),
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
