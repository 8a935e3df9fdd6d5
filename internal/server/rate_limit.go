package server

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/genstudio/internal/observability/logger"
	"go.uber.org/zap"
)

const rateLimitReasonUserRate = "user-rate"

// SubmissionRateLimit spends one token of the caller's bucket per submission.
// The limiter fails open, so a redis outage only logs.
func (s *Server) SubmissionRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.submitLimiter.Enabled() {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		userID := userIDFromContext(c)
		if userID == 0 {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		result, err := s.submitLimiter.Allow(ctx, userID)
		if err != nil {
			logger.FromContext(ctx).Warn("submission rate limit check failed", zap.Error(err))
		}
		if result != nil && !result.Allowed {
			denySubmission(c, normalizeRateLimitEndpoint(c), retryAfterSeconds(result.RetryAfter.Seconds()))
			return
		}

		c.Next()
	}
}

func denySubmission(c *gin.Context, endpoint string, retryAfter int) {
	logger.FromContext(c.Request.Context()).Warn("submission rate limit exceeded",
		zap.String("reason", rateLimitReasonUserRate),
		zap.String("endpoint", endpoint),
	)

	c.Header("Retry-After", strconv.Itoa(retryAfter))
	c.Header("X-Rate-Limited-Reason", rateLimitReasonUserRate)
	AbortWithError(c, ErrRateLimited)
}

func retryAfterSeconds(seconds float64) int {
	if seconds < 1 {
		return 1
	}
	return int(seconds + 0.999)
}

func normalizeRateLimitEndpoint(c *gin.Context) string {
	if c == nil {
		return "unknown"
	}
	endpoint := strings.TrimSpace(c.FullPath())
	if endpoint == "" {
		endpoint = strings.TrimSpace(c.Request.URL.Path)
	}
	if endpoint == "" {
		endpoint = "unknown"
	}
	return endpoint
}
