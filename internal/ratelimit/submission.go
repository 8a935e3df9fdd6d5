package ratelimit

import (
	"context"
	"errors"
	"fmt"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/genstudio/internal/config"
	obsmetrics "github.com/smallbiznis/genstudio/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const keySubmissionUser = "genstudio:submit:user:%d"

const endpointSubmit = "generations.submit"

type SubmissionParams struct {
	fx.In

	Client  *redis.Client `optional:"true"`
	Config  config.Config
	Log     *zap.Logger
	Metrics *obsmetrics.Metrics `optional:"true"`
}

// SubmissionLimiter throttles generation submissions per user. A nil or
// disabled limiter allows everything.
type SubmissionLimiter struct {
	bucket  *TokenBucket
	rate    float64
	burst   int
	log     *zap.Logger
	metrics *obsmetrics.Metrics
}

func NewSubmissionLimiter(p SubmissionParams) (*SubmissionLimiter, error) {
	limitCfg := p.Config.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}
	if p.Client == nil {
		return nil, errors.New("rate limit requires REDIS_ADDR")
	}
	if limitCfg.SubmitRate <= 0 || limitCfg.SubmitBurst <= 0 {
		return nil, errors.New("submission rate limit must be positive")
	}
	return &SubmissionLimiter{
		bucket:  NewTokenBucket(p.Client),
		rate:    limitCfg.SubmitRate,
		burst:   limitCfg.SubmitBurst,
		log:     p.Log.Named("rate.limit"),
		metrics: p.Metrics,
	}, nil
}

func (l *SubmissionLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

// Allow takes one token from the user's bucket. Redis failures fail open.
func (l *SubmissionLimiter) Allow(ctx context.Context, userID int64) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	result, err := l.bucket.Allow(ctx, fmt.Sprintf(keySubmissionUser, userID), l.rate, l.burst)
	if err != nil {
		l.log.Warn("submission rate limit unavailable, allowing request",
			zap.Int64("user_id", userID),
			zap.Error(err),
		)
		return &RateLimitResult{Allowed: true}, err
	}
	if result.Allowed {
		l.metrics.RecordRateLimitAllowed(ctx, endpointSubmit)
	} else {
		l.metrics.RecordRateLimitDenied(ctx, endpointSubmit, "user_bucket_empty")
	}
	return result, nil
}
