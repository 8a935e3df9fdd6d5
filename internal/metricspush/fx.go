package metricspush

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/genstudio/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultPushInterval = 30 * time.Second

var Module = fx.Module("metrics.push",
	fx.Provide(NewPusher),
	fx.Invoke(Start),
)

// Start pushes the default registry on an interval, with a final push on
// shutdown so the last poll cycle is not lost.
func Start(lc fx.Lifecycle, cfg config.Config, pusher Pusher, logger *zap.Logger, db *gorm.DB) error {
	if pusher == nil {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("metrics.push")

	active, err := NewActiveJobsGauge(prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}
	interval := cfg.MetricsPush.Interval
	if interval <= 0 {
		interval = defaultPushInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			logger.Info("starting metrics push", zap.String("exporter", cfg.MetricsPush.Exporter), zap.Duration("interval", interval))
			go func() {
				defer close(done)
				ticker := time.NewTicker(interval)
				defer ticker.Stop()

				for {
					select {
					case <-ticker.C:
						pushOnce(ctx, pusher, active, db, logger)
					case <-ctx.Done():
						return
					}
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			<-done
			pushOnce(stopCtx, pusher, active, db, logger)
			return nil
		},
	})
	return nil
}

func pushOnce(ctx context.Context, pusher Pusher, active *prometheus.GaugeVec, db *gorm.DB, logger *zap.Logger) {
	if err := UpdateActiveJobs(ctx, active, db); err != nil {
		logger.Warn("active job count failed", zap.Error(err))
	}
	pushCtx, cancel := context.WithTimeout(ctx, defaultPushTimeout)
	defer cancel()
	if err := pusher.Push(pushCtx, prometheus.DefaultGatherer); err != nil {
		logger.Error("metrics push failed", zap.Error(err))
	}
}

// NewActiveJobsGauge registers genstudio_generation_active_jobs on reg, or
// returns the collector already registered there.
func NewActiveJobsGauge(reg prometheus.Registerer) (*prometheus.GaugeVec, error) {
	gauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "genstudio_generation_active_jobs",
		Help: "Generation jobs not yet terminal, by status.",
	}, []string{"status"})
	if err := reg.Register(gauge); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
		}
		return nil, err
	}
	return gauge, nil
}

// UpdateActiveJobs sets the gauge from the job table. Statuses without rows
// are reset to zero.
func UpdateActiveJobs(ctx context.Context, gauge *prometheus.GaugeVec, db *gorm.DB) error {
	if gauge == nil || db == nil {
		return nil
	}
	var rows []struct {
		Status string
		Total  int64
	}
	if err := db.WithContext(ctx).Raw(
		`SELECT status, COUNT(*) AS total FROM generation_jobs WHERE status IN ('pending', 'processing') GROUP BY status`,
	).Scan(&rows).Error; err != nil {
		return err
	}

	counts := map[string]int64{"pending": 0, "processing": 0}
	for _, row := range rows {
		counts[row.Status] = row.Total
	}
	for status, total := range counts {
		gauge.WithLabelValues(status).Set(float64(total))
	}
	return nil
}
