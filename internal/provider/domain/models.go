package domain

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/genstudio/pkg/media"
)

type State string

const (
	StateQueued    State = "queued"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// JobStatus is the provider-neutral view of an external job.
type JobStatus struct {
	State       State  `json:"state"`
	ResultURL   string `json:"result_url,omitempty"`
	ErrorDetail string `json:"error_detail,omitempty"`
	ErrorCode   string `json:"error_code,omitempty"`
}

func (s JobStatus) Terminal() bool {
	return s.State == StateCompleted || s.State == StateFailed
}

type SubmitRequest struct {
	JobID         snowflake.ID
	Kind          media.Kind
	ProviderModel string
	Parameters    map[string]any
	CallbackURL   string
}

// SubmitResult carries the provider's job handle. Status is set only when the
// provider answered synchronously with a terminal outcome.
type SubmitResult struct {
	ExternalJobID string
	Status        *JobStatus
}

type PollRequest struct {
	ExternalJobID string
	Kind          media.Kind
	ProviderModel string
}

type CallbackEvent struct {
	ExternalJobID string
	Status        JobStatus
}
