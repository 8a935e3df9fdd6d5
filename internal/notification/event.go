package notification

import (
	"context"
	"time"
)

type EventType string

const (
	EventJobCompleted EventType = "job.completed"
	EventJobFailed    EventType = "job.failed"
	EventRefundFailed EventType = "refund.failed"
)

type Event struct {
	Type          EventType `json:"type"`
	JobID         string    `json:"job_id"`
	UserID        int64     `json:"user_id"`
	Kind          string    `json:"kind"`
	ModelKey      string    `json:"model_key"`
	CreditsCost   int64     `json:"credits_cost"`
	ResultURL     string    `json:"result_url,omitempty"`
	ErrorMessage  string    `json:"error_message,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// Publisher accepts events without blocking the caller.
type Publisher interface {
	Publish(event Event) bool
}

// Sink delivers a single event to an external channel.
type Sink interface {
	Name() string
	Send(ctx context.Context, event Event) error
}
