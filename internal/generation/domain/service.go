package domain

import (
	"context"
	"errors"
	"net/http"

	"github.com/bwmarrin/snowflake"
	aimodeldomain "github.com/smallbiznis/genstudio/internal/aimodel/domain"
	ledgerdomain "github.com/smallbiznis/genstudio/internal/ledger/domain"
	providerdomain "github.com/smallbiznis/genstudio/internal/provider/domain"
	"github.com/smallbiznis/genstudio/pkg/db/pagination"
)

type SubmitRequest struct {
	UserID     int64
	Kind       string
	ModelKey   string
	Parameters map[string]any
}

type SubmitResponse struct {
	Job          Job   `json:"job"`
	BalanceAfter int64 `json:"balance_after"`
}

type GetRequest struct {
	UserID int64
	JobID  snowflake.ID
}

type ListRequest struct {
	UserID    int64
	Kind      string
	Status    string
	ModelKey  string
	PageToken string
	PageSize  int
}

type ListResponse struct {
	pagination.PageInfo
	Jobs []Job `json:"jobs"`
}

// Finalize sources. Each maps to the reason recorded on the refund.
const (
	SourceDispatch   = "dispatch"
	SourceCallback   = "callback"
	SourcePoll       = "poll"
	SourceStale      = "stale"
	SourcePollErrors = "poll_errors"
)

type FinalizeRequest struct {
	JobID         snowflake.ID
	Status        providerdomain.JobStatus
	ExternalJobID string
	Source        string
}

// FinalizeResult reports whether this call performed the terminal transition.
// Applied is false when the job was already terminal.
type FinalizeResult struct {
	Applied bool `json:"applied"`
	Job     Job  `json:"job"`
}

type CallbackRequest struct {
	Provider string
	Token    string
	Payload  []byte
	Headers  http.Header
}

type CallbackResult struct {
	JobID   snowflake.ID `json:"job_id"`
	Applied bool         `json:"applied"`
	Ignored bool         `json:"ignored"`
}

type QuoteRequest struct {
	Kind       string
	ModelKey   string
	Parameters map[string]any
}

type QuoteResponse struct {
	Kind     string `json:"kind"`
	ModelKey string `json:"model_key"`
	Credits  int64  `json:"credits"`
}

type PollOutcome string

const (
	PollOutcomeInProgress     PollOutcome = "in_progress"
	PollOutcomeCompleted      PollOutcome = "completed"
	PollOutcomeFailed         PollOutcome = "failed"
	PollOutcomePollError      PollOutcome = "poll_error"
	PollOutcomePollErrorLimit PollOutcome = "poll_error_limit"
	PollOutcomeAlreadyFinal   PollOutcome = "already_final"
	PollOutcomeSkipped        PollOutcome = "skipped"
)

type Service interface {
	Submit(ctx context.Context, req SubmitRequest) (*SubmitResponse, error)
	Get(ctx context.Context, req GetRequest) (*Job, error)
	List(ctx context.Context, req ListRequest) (ListResponse, error)
	Quote(ctx context.Context, req QuoteRequest) (QuoteResponse, error)
	Finalize(ctx context.Context, req FinalizeRequest) (FinalizeResult, error)
	HandleCallback(ctx context.Context, req CallbackRequest) (CallbackResult, error)

	// ClaimForPolling returns processing jobs not touched within the minimum
	// poll interval and marks them as polled.
	ClaimForPolling(ctx context.Context, limit int) ([]*Job, error)
	PollJob(ctx context.Context, job *Job) (PollOutcome, error)
	// FindStale lists jobs of status whose staleness clock started before the
	// cutoff for their kind.
	FindStale(ctx context.Context, filter StaleFilter) ([]*Job, error)
	ExpireStale(ctx context.Context, job *Job, reason string) (FinalizeResult, error)
}

// AdapterResolver hands out provider adapters by provider name.
type AdapterResolver interface {
	Adapter(provider string) (providerdomain.Adapter, error)
	CallbackParser(provider string) (providerdomain.CallbackParser, error)
}

var (
	ErrInvalidParameters    = errors.New("invalid_parameters")
	ErrInvalidKind          = errors.New("invalid_kind")
	ErrInvalidUser          = errors.New("invalid_user")
	ErrInvalidStatus        = errors.New("invalid_status")
	ErrInvalidPageToken     = errors.New("invalid_page_token")
	ErrNotFound             = errors.New("generation_not_found")
	ErrNotTerminal          = errors.New("status_not_terminal")
	ErrTooManyActiveJobs    = errors.New("too_many_active_jobs")
	ErrDispatchFailed       = errors.New("dispatch_failed")
	ErrCallbackUnauthorized = errors.New("callback_unauthorized")

	ErrInsufficientCredits = ledgerdomain.ErrInsufficientCredits
	ErrModelUnavailable    = aimodeldomain.ErrModelUnavailable
)
