package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/genstudio/pkg/media"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

func ParseStatus(value string) (Status, bool) {
	switch Status(value) {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return Status(value), true
	}
	return "", false
}

// Error codes recorded on failed jobs.
const (
	ErrorCodeDispatch       = "dispatch_error"
	ErrorCodeProvider       = "provider_failed"
	ErrorCodeStaleTimeout   = "stale_timeout"
	ErrorCodePollErrorLimit = "poll_error_limit"
	ErrorCodeMissingResult  = "missing_result"
)

// Job is one request to a provider for one generated artifact.
type Job struct {
	ID             snowflake.ID   `gorm:"primaryKey" json:"id"`
	UserID         int64          `gorm:"not null" json:"user_id"`
	Kind           media.Kind     `gorm:"not null" json:"kind"`
	ModelKey       string         `gorm:"not null" json:"model_key"`
	Provider       string         `gorm:"not null" json:"provider"`
	ProviderModel  string         `gorm:"not null" json:"-"`
	Parameters     datatypes.JSON `gorm:"type:jsonb;not null" json:"parameters"`
	CreditsCost    int64          `gorm:"not null" json:"credits_cost"`
	ReservationID  *snowflake.ID  `json:"-"`
	ExternalJobID  *string        `json:"external_job_id,omitempty"`
	Status         Status         `gorm:"not null" json:"status"`
	ResultURL      *string        `json:"result_url,omitempty"`
	ErrorMessage   *string        `json:"error_message,omitempty"`
	ErrorCode      *string        `json:"error_code,omitempty"`
	PollErrorCount int            `gorm:"not null" json:"-"`
	LastPolledAt   *time.Time     `json:"-"`
	DispatchedAt   *time.Time     `json:"dispatched_at,omitempty"`
	CreatedAt      time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"not null" json:"updated_at"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty"`
}

func (Job) TableName() string { return "generation_jobs" }
