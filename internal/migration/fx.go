package migration

import (
	"github.com/smallbiznis/sentinel/internal/clock"
	"github.com/smallbiznis/sentinel/internal/config"
	"github.com/smallbiznis/sentinel/internal/seed"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, clk clock.Clock, log *zap.Logger) error {
		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}

		version, err := RunMigrations(sqlDB)
		if err != nil {
			return err
		}
		log.Info("migration.applied", zap.Uint("schema_version", version))

		if cfg.SeedDemoData {
			return seed.EnsureDemoData(conn, clk.Now())
		}
		return nil
	}),
)
