package domain

import (
	"context"
	"errors"

	"github.com/smallbiznis/genstudio/pkg/media"
)

type ListRequest struct {
	Kind       string
	Provider   string
	ActiveOnly bool
}

type UpdateRequest struct {
	ModelKey           string
	IsActive           *bool
	IsMaintenanceMode  *bool
	CreditCostOverride *int64
	ClearOverride      bool
	MaxDurationSeconds *int
}

type Service interface {
	Get(ctx context.Context, modelKey string) (*AIModel, error)
	List(ctx context.Context, req ListRequest) ([]AIModel, error)
	Update(ctx context.Context, req UpdateRequest) (*AIModel, error)
	// Resolve returns the model only when it can take a new job of kind.
	Resolve(ctx context.Context, kind media.Kind, modelKey string) (*AIModel, error)
	Register(ctx context.Context, model AIModel) (bool, error)
}

var (
	ErrInvalidModelKey  = errors.New("invalid_model_key")
	ErrInvalidKind      = errors.New("invalid_kind")
	ErrInvalidProvider  = errors.New("invalid_provider")
	ErrInvalidOverride  = errors.New("invalid_credit_cost_override")
	ErrModelNotFound    = errors.New("model_not_found")
	ErrModelUnavailable = errors.New("model_unavailable")
	ErrKindMismatch     = errors.New("model_kind_mismatch")
)
