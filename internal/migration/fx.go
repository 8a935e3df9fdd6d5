package migration

import (
	"context"

	aimodeldomain "github.com/smallbiznis/genstudio/internal/aimodel/domain"
	"github.com/smallbiznis/genstudio/internal/config"
	ledgerdomain "github.com/smallbiznis/genstudio/internal/ledger/domain"
	"github.com/smallbiznis/genstudio/internal/seed"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	Lifecycle fx.Lifecycle
	DB        *gorm.DB
	Config    config.Config
	Log       *zap.Logger
	AIModels  aimodeldomain.Service
	Ledger    ledgerdomain.Service
}

var Module = fx.Module("migrations",
	fx.Invoke(Bootstrap),
)

// Bootstrap migrates and seeds once the database pool is up. Nothing runs
// unless DATABASE_MIGRATE is set.
func Bootstrap(p Params) {
	if !p.Config.DBMigrate {
		return
	}
	log := p.Log.Named("migration")

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			sqlDB, err := p.DB.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
			log.Info("migrations applied")

			added, err := seed.EnsureCatalog(ctx, p.AIModels)
			if err != nil {
				return err
			}
			log.Info("model catalog seeded", zap.Int("added", added))

			if p.Config.IsProduction() || p.Config.Seed.UserID == 0 {
				return nil
			}
			return seed.EnsureUser(ctx, p.DB, p.Ledger, p.Config.Seed.UserID, p.Config.Seed.Credits)
		},
	})
}
