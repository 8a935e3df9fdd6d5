package authorization

import (
	"context"
	"errors"
)

const (
	ObjectCredits = "credits"
	ObjectModel   = "model"
)

const (
	ActionCreditsGrant     = "credits.grant"
	ActionCreditsReconcile = "credits.reconcile"
	ActionModelUpdate      = "model.update"
)

const (
	RoleAdmin   = "admin"
	RoleSupport = "support"
)

// Service decides whether an operator may run an admin action.
type Service interface {
	Authorize(ctx context.Context, userID int64, object string, action string) error
}

var (
	ErrForbidden     = errors.New("forbidden")
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
)
