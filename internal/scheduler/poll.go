package scheduler

import (
	"context"
	"sync"

	generationdomain "github.com/smallbiznis/genstudio/internal/generation/domain"
	obsmetrics "github.com/smallbiznis/genstudio/internal/observability/metrics"
	"go.uber.org/zap"
)

// PollJobsJob claims one batch of processing jobs due for a status check and
// polls them with bounded concurrency.
func (s *Scheduler) PollJobsJob(ctx context.Context) error {
	ctx, run, _ := s.ensureJobRun(ctx, jobPollJobs, s.cfg.BatchSize)

	jobs, err := s.generation.ClaimForPolling(ctx, s.cfg.BatchSize)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		return nil
	}

	sem := make(chan struct{}, s.cfg.PollConcurrency)
	var wg sync.WaitGroup
	for _, job := range jobs {
		select {
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(job *generationdomain.Job) {
			defer wg.Done()
			defer func() { <-sem }()
			defer s.recoverPanic(ctx, run, jobPollJobs, job)

			outcome, err := s.generation.PollJob(ctx, job)
			run.AddProcessed(1)
			if err != nil {
				s.logPollerError(ctx, run, "poll job failed", jobPollJobs, job, err)
				return
			}
			s.recordOutcome(ctx, job, outcome)
		}(job)
	}
	wg.Wait()
	return nil
}

func (s *Scheduler) recordOutcome(ctx context.Context, job *generationdomain.Job, outcome generationdomain.PollOutcome) {
	pollerMetrics := obsmetrics.Poller()
	switch outcome {
	case generationdomain.PollOutcomeCompleted:
		pollerMetrics.IncFinalized(obsmetrics.OutcomeCompleted)
	case generationdomain.PollOutcomeFailed:
		pollerMetrics.IncFinalized(obsmetrics.OutcomeFailed)
	case generationdomain.PollOutcomePollErrorLimit:
		pollerMetrics.IncFinalized(obsmetrics.OutcomePollErrorLimit)
	case generationdomain.PollOutcomeAlreadyFinal:
		pollerMetrics.IncFinalized(obsmetrics.OutcomeAlreadyFinal)
	default:
		s.logger(ctx).Debug("poller.job.polled",
			zap.String("job_id", job.ID.String()),
			zap.String("provider", job.Provider),
			zap.String("outcome", string(outcome)),
		)
		return
	}
	s.logJobFinalized(ctx, job, string(outcome))
}
