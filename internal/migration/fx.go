package migration

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/petlog/internal/config"
	"github.com/smallbiznis/petlog/internal/seed"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, genID *snowflake.Node, log *zap.Logger) error {
		if err := Run(conn); err != nil {
			return err
		}
		if !cfg.SeedDefaults {
			return nil
		}
		return seed.EnsureDefaults(conn, genID, log.Named("seed"))
	}),
)
