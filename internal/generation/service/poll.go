package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	generationdomain "github.com/smallbiznis/genstudio/internal/generation/domain"
	obsmetrics "github.com/smallbiznis/genstudio/internal/observability/metrics"
	providerdomain "github.com/smallbiznis/genstudio/internal/provider/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func (s *Service) ClaimForPolling(ctx context.Context, limit int) ([]*generationdomain.Job, error) {
	if limit <= 0 {
		return nil, nil
	}
	now := s.clock.Now().UTC()
	cutoff := now.Add(-s.minPollInterval)

	var claimed []*generationdomain.Job
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lockStart := time.Now()
		jobs, err := s.repo.LockProcessing(ctx, tx, cutoff, limit)
		obsmetrics.Poller().ObserveDBLockWait(obsmetrics.LockResourceProcessingJobs, time.Since(lockStart))
		if err != nil {
			return err
		}
		if len(jobs) == 0 {
			return nil
		}
		ids := make([]snowflake.ID, 0, len(jobs))
		for _, job := range jobs {
			ids = append(ids, job.ID)
		}
		if err := s.repo.TouchPolled(ctx, tx, ids, now); err != nil {
			return err
		}
		claimed = jobs
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// PollJob asks the provider for the status of a processing job and feeds the
// answer to Finalize. Poll failures are counted; once MaxPollErrors
// consecutive polls have failed the job is failed and refunded.
func (s *Service) PollJob(ctx context.Context, job *generationdomain.Job) (generationdomain.PollOutcome, error) {
	if job == nil {
		return "", generationdomain.ErrNotFound
	}
	if job.Status != generationdomain.StatusProcessing {
		return generationdomain.PollOutcomeAlreadyFinal, nil
	}

	status, err := s.pollProvider(ctx, job)
	if errors.Is(err, providerdomain.ErrPollingUnsupported) {
		return generationdomain.PollOutcomeSkipped, nil
	}
	if err != nil {
		return s.recordPollError(ctx, job, err)
	}

	if !status.Terminal() {
		if job.PollErrorCount > 0 {
			if err := s.repo.ResetPollErrors(ctx, s.db, job.ID); err != nil {
				return "", err
			}
		}
		return generationdomain.PollOutcomeInProgress, nil
	}

	result, err := s.Finalize(ctx, generationdomain.FinalizeRequest{
		JobID:  job.ID,
		Status: *status,
		Source: generationdomain.SourcePoll,
	})
	if err != nil {
		return "", err
	}
	if !result.Applied {
		return generationdomain.PollOutcomeAlreadyFinal, nil
	}
	if result.Job.Status == generationdomain.StatusCompleted {
		return generationdomain.PollOutcomeCompleted, nil
	}
	return generationdomain.PollOutcomeFailed, nil
}

func (s *Service) pollProvider(ctx context.Context, job *generationdomain.Job) (*providerdomain.JobStatus, error) {
	if job.ExternalJobID == nil || *job.ExternalJobID == "" {
		return nil, fmt.Errorf("%w: job has no external id", providerdomain.ErrInvalidParameters)
	}
	adapter, err := s.adapters.Adapter(job.Provider)
	if err != nil {
		return nil, err
	}
	return adapter.PollStatus(ctx, providerdomain.PollRequest{
		ExternalJobID: *job.ExternalJobID,
		Kind:          job.Kind,
		ProviderModel: job.ProviderModel,
	})
}

func (s *Service) recordPollError(ctx context.Context, job *generationdomain.Job, cause error) (generationdomain.PollOutcome, error) {
	obsmetrics.Poller().IncPollError(job.Provider)
	count, err := s.repo.RecordPollError(ctx, s.db, job.ID, s.clock.Now().UTC())
	if err != nil {
		return "", err
	}
	s.log.Warn("generation status poll failed",
		zap.String("job_id", job.ID.String()),
		zap.String("provider", job.Provider),
		zap.Int("poll_errors", count),
		zap.Int("max_poll_errors", s.maxPollErrors),
		zap.Error(cause),
	)
	if count < s.maxPollErrors {
		return generationdomain.PollOutcomePollError, nil
	}

	result, err := s.Finalize(ctx, generationdomain.FinalizeRequest{
		JobID: job.ID,
		Status: providerdomain.JobStatus{
			State:       providerdomain.StateFailed,
			ErrorDetail: fmt.Sprintf("provider status unavailable after %d attempts: %v", count, cause),
		},
		Source: generationdomain.SourcePollErrors,
	})
	if err != nil {
		return "", err
	}
	if !result.Applied {
		return generationdomain.PollOutcomeAlreadyFinal, nil
	}
	return generationdomain.PollOutcomePollErrorLimit, nil
}

func (s *Service) FindStale(ctx context.Context, filter generationdomain.StaleFilter) ([]*generationdomain.Job, error) {
	if filter.Status.Terminal() || filter.Status == "" {
		return nil, generationdomain.ErrInvalidStatus
	}
	return s.repo.FindStale(ctx, s.db, filter)
}

// ExpireStale fails a job its provider never resolved and refunds it.
func (s *Service) ExpireStale(ctx context.Context, job *generationdomain.Job, reason string) (generationdomain.FinalizeResult, error) {
	if job == nil {
		return generationdomain.FinalizeResult{}, generationdomain.ErrNotFound
	}
	if reason == "" {
		reason = "generation timed out"
	}
	return s.Finalize(ctx, generationdomain.FinalizeRequest{
		JobID: job.ID,
		Status: providerdomain.JobStatus{
			State:       providerdomain.StateFailed,
			ErrorDetail: reason,
		},
		Source: generationdomain.SourceStale,
	})
}
