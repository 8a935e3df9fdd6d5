package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/genstudio/internal/clock"
	generationdomain "github.com/smallbiznis/genstudio/internal/generation/domain"
	obsmetrics "github.com/smallbiznis/genstudio/internal/observability/metrics"
	"github.com/smallbiznis/genstudio/internal/ratelimit"
	"github.com/smallbiznis/genstudio/pkg/telemetry/correlation"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	jobPollJobs   = "poll_jobs"
	jobStaleSweep = "stale_sweep"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	Log        *zap.Logger
	Generation generationdomain.Service
	GenID      *snowflake.Node
	Clock      clock.Clock       `optional:"true"`
	Locker     *ratelimit.Locker `optional:"true"`
	Config     Config            `optional:"true"`
}

// Scheduler drives every generation job to a terminal state: it polls
// providers for processing jobs and expires jobs nobody resolved in time.
type Scheduler struct {
	log        *zap.Logger
	cfg        Config
	genID      *snowflake.Node
	clock      clock.Clock
	generation generationdomain.Service
	locker     *ratelimit.Locker
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Generation == nil || p.GenID == nil {
		return nil, ErrInvalidConfig
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Scheduler{
		log:        p.Log.Named("scheduler").With(zap.String("component", "poller")),
		cfg:        p.Config.withDefaults(),
		genID:      p.GenID,
		clock:      clk,
		generation: p.Generation,
		locker:     p.Locker,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := s.ensureJobRun(ctx, name, batchSize)
	if owner {
		s.logJobStart(ctx, run)
	}
	log := s.logger(ctx).With(
		zap.String("job", name),
		zap.String("run_id", run.runID),
	)
	pollerMetrics := obsmetrics.Poller()
	pollerMetrics.IncJobRun(name)

	err := fn(ctx)
	pollerMetrics.ObserveJobDuration(name, s.clock.Now().Sub(start))
	pollerMetrics.AddBatchProcessed(name, run.Processed())
	if owner {
		if err != nil && run.Errors() == 0 {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	// Deadline is a soft timeout; the next cycle picks up the remainder.
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		pollerMetrics.IncJobTimeout(name)
	}
	pollerMetrics.IncJobError(name, err)
	if isTimeout {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce executes one poll cycle. With a shared lock configured only one
// instance runs a cycle at a time; without it, row claims keep instances apart.
func (s *Scheduler) RunOnce(parent context.Context) error {
	release, ok := s.acquireLeadership(parent)
	if !ok {
		return nil
	}
	defer release()

	// Every finalize in one cycle shares a correlation id.
	parent, _ = correlation.EnsureCorrelationID(parent)

	jobs := []struct {
		Name string
		Run  func(context.Context) error
	}{
		{jobPollJobs, s.PollJobsJob},
		{jobStaleSweep, s.StaleSweepJob},
	}

	var err error
	for _, job := range jobs {
		if !s.isJobEnabled(job.Name) {
			continue
		}
		err = errors.Join(err, s.runJob(parent, job.Name, s.cfg.BatchSize, s.cfg.JobTimeout, job.Run))
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := time.Now().Add(s.cfg.RunInterval)
	pollerMetrics := obsmetrics.Poller()

	s.log.Info("poller started",
		zap.Duration("interval", s.cfg.RunInterval),
		zap.Int("batch_size", s.cfg.BatchSize),
		zap.Int("concurrency", s.cfg.PollConcurrency),
	)
	for {
		if runLag := time.Since(nextRun); runLag > 0 {
			pollerMetrics.ObserveRunLoopLag(runLag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("poller run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			s.log.Info("poller stopped")
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	// Empty means every job runs.
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}
