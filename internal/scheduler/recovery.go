package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	generationdomain "github.com/smallbiznis/genstudio/internal/generation/domain"
	obsmetrics "github.com/smallbiznis/genstudio/internal/observability/metrics"
	"github.com/smallbiznis/genstudio/internal/scheduler/guard"
	"github.com/smallbiznis/genstudio/pkg/media"
	"go.uber.org/zap"
)

// StaleSweepJob fails and refunds jobs that outlived their staleness window:
// processing jobs per kind, and pending jobs whose dispatch never completed.
func (s *Scheduler) StaleSweepJob(ctx context.Context) error {
	ctx, run, _ := s.ensureJobRun(ctx, jobStaleSweep, s.cfg.BatchSize)
	now := s.clock.Now().UTC()
	var jobErr error

	for _, kind := range media.Kinds() {
		timeout := s.cfg.StaleAfter[kind]
		if timeout <= 0 {
			continue
		}
		reason := fmt.Sprintf("no result from provider within %s", timeout)
		err := s.expireBatch(ctx, run, generationdomain.StaleFilter{
			Status: generationdomain.StatusProcessing,
			Kind:   kind,
			Before: now.Add(-timeout),
			Limit:  s.cfg.BatchSize,
		}, now, timeout, reason)
		jobErr = errors.Join(jobErr, err)
		if ctx.Err() != nil {
			return errors.Join(jobErr, ctx.Err())
		}
	}

	reason := fmt.Sprintf("dispatch did not complete within %s", s.cfg.PendingTimeout)
	jobErr = errors.Join(jobErr, s.expireBatch(ctx, run, generationdomain.StaleFilter{
		Status: generationdomain.StatusPending,
		Before: now.Add(-s.cfg.PendingTimeout),
		Limit:  s.cfg.BatchSize,
	}, now, s.cfg.PendingTimeout, reason))

	return jobErr
}

func (s *Scheduler) expireBatch(ctx context.Context, run *jobRun, filter generationdomain.StaleFilter, now time.Time, timeout time.Duration, reason string) error {
	lockStart := time.Now()
	jobs, err := s.generation.FindStale(ctx, filter)
	obsmetrics.Poller().ObserveDBLockWait(obsmetrics.LockResourceStaleJobs, time.Since(lockStart))
	if err != nil {
		return err
	}

	var jobErr error
	for _, job := range jobs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		run.AddProcessed(1)
		if err := guard.EnsureJobCanExpire(job, now, timeout); err != nil {
			s.logger(ctx).Debug("poller.job.not_expired",
				zap.String("job_id", job.ID.String()),
				zap.Error(err),
			)
			continue
		}

		result, err := s.generation.ExpireStale(ctx, job, reason)
		if err != nil {
			s.logPollerError(ctx, run, "expire stale job failed", jobStaleSweep, job, err)
			jobErr = errors.Join(jobErr, err)
			continue
		}
		if !result.Applied {
			obsmetrics.Poller().IncFinalized(obsmetrics.OutcomeAlreadyFinal)
			continue
		}
		obsmetrics.Poller().IncFinalized(obsmetrics.OutcomeStale)
		s.logJobFinalized(ctx, job, obsmetrics.OutcomeStale,
			zap.String("status_before", string(job.Status)),
			zap.Duration("timeout", timeout),
		)
	}
	return jobErr
}

// recoverPanic keeps one misbehaving job from taking the poller down.
func (s *Scheduler) recoverPanic(ctx context.Context, run *jobRun, jobName string, job *generationdomain.Job) {
	r := recover()
	if r == nil {
		return
	}
	err := fmt.Errorf("panic: %v", r)
	obsmetrics.Poller().IncJobError(jobName, err)
	s.logPollerError(ctx, run, "poller recovered from panic", jobName, job, err, zap.Stack("stack"))
}
