package domain

import (
	"context"
	"errors"

	"github.com/smallbiznis/genstudio/pkg/media"
)

// Quote describes what is being priced. Options carries the raw request
// parameters; only the pricing-relevant ones are read.
type Quote struct {
	Kind     media.Kind
	ModelKey string
	Options  map[string]any
	// Override is the catalog price for the model and wins when positive.
	Override *int64
}

type Resolver interface {
	Resolve(ctx context.Context, quote Quote) (int64, error)
}

var (
	ErrInvalidParameters = errors.New("invalid_parameters")
	ErrInvalidKind       = errors.New("invalid_kind")
)
