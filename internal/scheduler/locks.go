package scheduler

import (
	"context"
	"time"

	obsmetrics "github.com/smallbiznis/genstudio/internal/observability/metrics"
	"go.uber.org/zap"
)

const leaderLockKey = "genstudio:poller:leader"

// acquireLeadership takes the cycle lock when a shared locker is configured.
// Lock backend errors do not stop the cycle: row claims and idempotent
// finalization keep concurrent pollers correct, only less efficient.
func (s *Scheduler) acquireLeadership(ctx context.Context) (func(), bool) {
	noop := func() {}
	if s.locker == nil {
		return noop, true
	}

	token, ok, err := s.locker.TryLock(ctx, leaderLockKey, s.cfg.LockTTL)
	if err != nil {
		s.log.Warn("poller lock unavailable, running without it", zap.Error(err))
		return noop, true
	}
	if !ok {
		obsmetrics.Poller().IncLeaderSkipped()
		s.log.Debug("poller cycle skipped, lock held elsewhere")
		return nil, false
	}

	return func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := s.locker.Release(releaseCtx, leaderLockKey, token); err != nil {
			s.log.Warn("poller lock release failed", zap.Error(err))
		}
	}, true
}
