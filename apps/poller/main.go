package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/genstudio/internal/aimodel"
	"github.com/smallbiznis/genstudio/internal/clock"
	"github.com/smallbiznis/genstudio/internal/config"
	"github.com/smallbiznis/genstudio/internal/generation"
	"github.com/smallbiznis/genstudio/internal/ledger"
	"github.com/smallbiznis/genstudio/internal/metricspush"
	"github.com/smallbiznis/genstudio/internal/migration"
	"github.com/smallbiznis/genstudio/internal/notification"
	"github.com/smallbiznis/genstudio/internal/observability"
	"github.com/smallbiznis/genstudio/internal/pricing"
	"github.com/smallbiznis/genstudio/internal/provider"
	"github.com/smallbiznis/genstudio/internal/ratelimit"
	"github.com/smallbiznis/genstudio/internal/scheduler"
	"github.com/smallbiznis/genstudio/internal/storage/storagefx"
	"github.com/smallbiznis/genstudio/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		ratelimit.Module,

		// Generation pipeline
		storagefx.Module,
		provider.Module,
		notification.Module,
		ledger.Module,
		aimodel.Module,
		pricing.Module,
		generation.Module,
		migration.Module,

		// Status poller only, no HTTP listener
		scheduler.Module,
		metricspush.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNode)
}
