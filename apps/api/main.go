package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/petlog/internal/clock"
	"github.com/smallbiznis/petlog/internal/config"
	"github.com/smallbiznis/petlog/internal/migration"
	"github.com/smallbiznis/petlog/internal/observability"
	"github.com/smallbiznis/petlog/internal/server"
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
		migration.Module,

		server.Module,
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
