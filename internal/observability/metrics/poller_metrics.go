package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	PollerErrorTypeDeadlineExceeded = "deadline_exceeded"
	PollerErrorTypeDB               = "db"
	PollerErrorTypeBusinessRule     = "business_rule"
	PollerErrorTypeUnknown          = "unknown"
)

const (
	PollerJobReasonDeadlineExceeded     = "deadline_exceeded"
	PollerJobReasonDBLockTimeout        = "db_lock_timeout"
	PollerJobReasonSerializationFailure = "serialization_failure"
	PollerJobReasonDeadlock             = "deadlock"
	PollerJobReasonUnknown              = "unknown"
)

const (
	OutcomeCompleted      = "completed"
	OutcomeFailed         = "failed"
	OutcomeStale          = "stale"
	OutcomePollErrorLimit = "poll_error_limit"
	OutcomeAlreadyFinal   = "already_final"
)

const (
	LockResourceProcessingJobs = "processing_jobs"
	LockResourceStaleJobs      = "stale_jobs"
)

// PollerMetrics captures status poller health signals.
type PollerMetrics struct {
	jobRuns        *prometheus.CounterVec
	jobDuration    *prometheus.HistogramVec
	jobTimeouts    *prometheus.CounterVec
	jobErrors      *prometheus.CounterVec
	batchProcessed *prometheus.CounterVec
	runLoopLag     prometheus.Histogram
	finalized      *prometheus.CounterVec
	pollErrors     *prometheus.CounterVec
	leaderSkipped  prometheus.Counter
	dbLockWait     *prometheus.HistogramVec
}

var (
	pollerMetricsOnce sync.Once
	pollerMetrics     *PollerMetrics
)

// Poller returns the singleton poller metrics registry.
func Poller() *PollerMetrics {
	return PollerWithConfig(Config{})
}

// PollerWithConfig returns the singleton poller metrics registry using config labels.
func PollerWithConfig(cfg Config) *PollerMetrics {
	pollerMetricsOnce.Do(func() {
		pollerMetrics = newPollerMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return pollerMetrics
}

// ResetPollerMetricsForTest resets the poller metrics singleton for tests.
func ResetPollerMetricsForTest() {
	pollerMetricsOnce = sync.Once{}
	pollerMetrics = nil
}

func newPollerMetrics(registerer prometheus.Registerer, cfg Config) *PollerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "genstudio"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	m := &PollerMetrics{
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "genstudio_poller_job_runs_total",
			Help:        "Poller job runs by name.",
			ConstLabels: constLabels,
		}, []string{"job"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "genstudio_poller_job_duration_seconds",
			Help:        "Poller job latency.",
			Buckets:     []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
			ConstLabels: constLabels,
		}, []string{"job"}),
		jobTimeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "genstudio_poller_job_timeouts_total",
			Help:        "Poller jobs that hit their run deadline.",
			ConstLabels: constLabels,
		}, []string{"job"}),
		jobErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "genstudio_poller_job_errors_total",
			Help:        "Poller job errors by low-cardinality reason.",
			ConstLabels: constLabels,
		}, []string{"job", "reason"}),
		batchProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "genstudio_poller_batch_processed_total",
			Help:        "Generation jobs examined per poller job.",
			ConstLabels: constLabels,
		}, []string{"job"}),
		runLoopLag: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "genstudio_poller_runloop_lag_seconds",
			Help:        "Poller run loop lag beyond the configured interval.",
			Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			ConstLabels: constLabels,
		}),
		finalized: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "genstudio_poller_jobs_finalized_total",
			Help:        "Generation jobs moved to a terminal state by the poller.",
			ConstLabels: constLabels,
		}, []string{"outcome"}),
		pollErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "genstudio_poller_status_errors_total",
			Help:        "Provider status queries that failed.",
			ConstLabels: constLabels,
		}, []string{"provider"}),
		leaderSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "genstudio_poller_leader_skipped_total",
			Help:        "Poll cycles skipped because another instance held the lock.",
			ConstLabels: constLabels,
		}),
		dbLockWait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "genstudio_poller_db_lock_wait_seconds",
			Help:        "Time spent claiming rows with SELECT FOR UPDATE SKIP LOCKED.",
			Buckets:     []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			ConstLabels: constLabels,
		}, []string{"resource"}),
	}

	registerer.MustRegister(
		m.jobRuns,
		m.jobDuration,
		m.jobTimeouts,
		m.jobErrors,
		m.batchProcessed,
		m.runLoopLag,
		m.finalized,
		m.pollErrors,
		m.leaderSkipped,
		m.dbLockWait,
	)

	return m
}

func (m *PollerMetrics) IncJobRun(job string) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job).Inc()
}

func (m *PollerMetrics) ObserveJobDuration(job string, duration time.Duration) {
	if m == nil {
		return
	}
	m.jobDuration.WithLabelValues(job).Observe(duration.Seconds())
}

func (m *PollerMetrics) IncJobTimeout(job string) {
	if m == nil {
		return
	}
	m.jobTimeouts.WithLabelValues(job).Inc()
}

// IncJobError increments the job error counter with a classified reason.
func (m *PollerMetrics) IncJobError(job string, err error) {
	if m == nil || err == nil {
		return
	}
	m.jobErrors.WithLabelValues(job, ClassifyPollerJobReason(err)).Inc()
}

func (m *PollerMetrics) AddBatchProcessed(job string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.batchProcessed.WithLabelValues(job).Add(float64(count))
}

// ObserveRunLoopLag records lag between the scheduled tick and actual run start.
func (m *PollerMetrics) ObserveRunLoopLag(duration time.Duration) {
	if m == nil {
		return
	}
	m.runLoopLag.Observe(max(duration, 0).Seconds())
}

func (m *PollerMetrics) IncFinalized(outcome string) {
	if m == nil {
		return
	}
	m.finalized.WithLabelValues(outcome).Inc()
}

func (m *PollerMetrics) IncPollError(provider string) {
	if m == nil {
		return
	}
	m.pollErrors.WithLabelValues(provider).Inc()
}

func (m *PollerMetrics) IncLeaderSkipped() {
	if m == nil {
		return
	}
	m.leaderSkipped.Inc()
}

func (m *PollerMetrics) ObserveDBLockWait(resource string, duration time.Duration) {
	if m == nil {
		return
	}
	m.dbLockWait.WithLabelValues(resource).Observe(duration.Seconds())
}

// ClassifyPollerErrorType returns a low-cardinality error type for logging.
func ClassifyPollerErrorType(err error) string {
	switch {
	case err == nil:
		return PollerErrorTypeUnknown
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return PollerErrorTypeDeadlineExceeded
	case isDBError(err):
		return PollerErrorTypeDB
	default:
		return PollerErrorTypeBusinessRule
	}
}

// IsPollerErrorRetryable reports whether the next cycle can be expected to succeed.
func IsPollerErrorRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	return isDBError(err)
}

// ClassifyPollerJobReason maps poller job errors to low-cardinality reasons.
func ClassifyPollerJobReason(err error) string {
	switch {
	case err == nil:
		return PollerJobReasonUnknown
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return PollerJobReasonDeadlineExceeded
	case hasPGCode(err, "55P03"):
		return PollerJobReasonDBLockTimeout
	case hasPGCode(err, "40001"):
		return PollerJobReasonSerializationFailure
	case hasPGCode(err, "40P01"):
		return PollerJobReasonDeadlock
	default:
		return PollerJobReasonUnknown
	}
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}

func isDBError(err error) bool {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false
	}
	if errors.Is(err, gorm.ErrInvalidDB) ||
		errors.Is(err, gorm.ErrInvalidTransaction) ||
		errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr)
}
