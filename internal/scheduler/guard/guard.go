package guard

import (
	"errors"
	"time"

	generationdomain "github.com/smallbiznis/genstudio/internal/generation/domain"
)

var (
	ErrJobTerminal = errors.New("generation_job_terminal")
	ErrJobNotStale = errors.New("generation_job_not_stale")
)

// StalenessStart is when a job's staleness clock started: dispatch for
// processing jobs, creation for jobs that never left pending.
func StalenessStart(job *generationdomain.Job) time.Time {
	if job.DispatchedAt != nil {
		return *job.DispatchedAt
	}
	return job.CreatedAt
}

func EnsureJobCanExpire(job *generationdomain.Job, now time.Time, timeout time.Duration) error {
	if job.Status.Terminal() {
		return ErrJobTerminal
	}
	if now.Sub(StalenessStart(job)) < timeout {
		return ErrJobNotStale
	}
	return nil
}
