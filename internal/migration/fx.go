package migration

import (
	"github.com/faturolabs/faturo/internal/config"
	"github.com/faturolabs/faturo/internal/seed"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		// Embedded migrations target postgres; other dialects manage their
		// own schema.
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		}

		if cfg.SeedDefaultTenant {
			return seed.EnsureDefaultTenant(conn)
		}
		return nil
	}),
)
