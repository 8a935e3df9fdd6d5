package domain

import (
	"context"
	"net/http"
	"time"

	obsmetrics "github.com/smallbiznis/genstudio/internal/observability/metrics"
	"go.uber.org/zap"
)

type Adapter interface {
	Provider() string
	Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error)
	PollStatus(ctx context.Context, req PollRequest) (*JobStatus, error)
}

// CallbackParser is implemented by adapters whose provider pushes status updates.
type CallbackParser interface {
	ParseCallback(ctx context.Context, payload []byte, headers http.Header) (*CallbackEvent, error)
}

type AdapterConfig struct {
	APIKey         string
	BaseURL        string
	Timeout        time.Duration
	MaxRetries     int
	RetryBaseDelay time.Duration
	HTTPClient     *http.Client
	Log            *zap.Logger
	Metrics        *obsmetrics.Metrics
}

type AdapterFactory interface {
	Provider() string
	NewAdapter(cfg AdapterConfig) (Adapter, error)
}
