package scheduler

import (
	"context"
	"sync"
	"time"

	generationdomain "github.com/smallbiznis/genstudio/internal/generation/domain"
	obscontext "github.com/smallbiznis/genstudio/internal/observability/context"
	obslogger "github.com/smallbiznis/genstudio/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/genstudio/internal/observability/metrics"
	"go.uber.org/zap"
)

type jobRun struct {
	mu             sync.Mutex
	job            string
	runID          string
	batchSize      int
	startedAt      time.Time
	processedCount int
	errorCount     int
}

type jobRunKey struct{}

func (r *jobRun) AddProcessed(count int) {
	if r == nil || count <= 0 {
		return
	}
	r.mu.Lock()
	r.processedCount += count
	r.mu.Unlock()
}

func (r *jobRun) IncError() {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.errorCount++
	r.mu.Unlock()
}

func (r *jobRun) Processed() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.processedCount
}

func (r *jobRun) Errors() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.errorCount
}

func (s *Scheduler) ensureJobRun(ctx context.Context, job string, batchSize int) (context.Context, *jobRun, bool) {
	if ctx == nil {
		ctx = context.Background()
	}
	if existing := jobRunFromContext(ctx); existing != nil {
		return ctx, existing, false
	}
	run := &jobRun{
		job:       job,
		runID:     s.genID.Generate().String(),
		batchSize: batchSize,
		startedAt: time.Now(),
	}
	ctx = context.WithValue(ctx, jobRunKey{}, run)
	ctx = obscontext.WithActor(ctx, "system", "poller")
	return ctx, run, true
}

func jobRunFromContext(ctx context.Context) *jobRun {
	if ctx == nil {
		return nil
	}
	if run, ok := ctx.Value(jobRunKey{}).(*jobRun); ok {
		return run
	}
	return nil
}

func (s *Scheduler) logger(ctx context.Context) *zap.Logger {
	return obslogger.WithContext(ctx, s.log)
}

func (s *Scheduler) logJobStart(ctx context.Context, run *jobRun) {
	if run == nil {
		return
	}
	s.logger(ctx).Debug("poller.job.start",
		zap.String("job", run.job),
		zap.String("run_id", run.runID),
		zap.Int("batch_size", run.batchSize),
	)
}

func (s *Scheduler) logJobFinish(ctx context.Context, run *jobRun) {
	if run == nil {
		return
	}
	processed := run.Processed()
	errorCount := run.Errors()
	fields := []zap.Field{
		zap.String("job", run.job),
		zap.String("run_id", run.runID),
		zap.Int64("duration_ms", time.Since(run.startedAt).Milliseconds()),
		zap.Int("processed_count", processed),
		zap.Int("error_count", errorCount),
	}
	log := s.logger(ctx)
	switch {
	case errorCount > 0:
		log.Warn("poller.job.finish", fields...)
	case processed > 0:
		log.Info("poller.job.finish", fields...)
	default:
		// Idle cycles run every few seconds.
		log.Debug("poller.job.finish", fields...)
	}
}

func (s *Scheduler) logPollerError(ctx context.Context, run *jobRun, msg string, job string, genJob *generationdomain.Job, err error, fields ...zap.Field) {
	if err == nil {
		return
	}
	if run != nil {
		run.IncError()
	}
	baseFields := []zap.Field{
		zap.String("job", job),
		zap.String("error_type", obsmetrics.ClassifyPollerErrorType(err)),
		zap.String("error", err.Error()),
		zap.Bool("retryable", obsmetrics.IsPollerErrorRetryable(err)),
	}
	log := s.logger(ctx)
	if genJob != nil {
		log = obslogger.WithJob(log, genJob.ID.String(), string(genJob.Kind), genJob.ModelKey)
		baseFields = append(baseFields, zap.String("provider", genJob.Provider))
	}
	log.Error(msg, append(baseFields, fields...)...)
}

func (s *Scheduler) logJobFinalized(ctx context.Context, job *generationdomain.Job, outcome string, fields ...zap.Field) {
	log := obslogger.WithJob(s.logger(ctx), job.ID.String(), string(job.Kind), job.ModelKey)
	log.Info("poller.job.finalized",
		append([]zap.Field{
			zap.String("provider", job.Provider),
			zap.String("outcome", outcome),
		}, fields...)...,
	)
}
