package domain

import (
	"errors"
	"fmt"
)

var (
	ErrProviderNotFound   = errors.New("provider_not_found")
	ErrInvalidConfig      = errors.New("invalid_provider_config")
	ErrPollingUnsupported = errors.New("polling_unsupported")
	ErrCallbackIgnored    = errors.New("callback_ignored")
	ErrInvalidPayload     = errors.New("invalid_payload")
	ErrInvalidParameters  = errors.New("invalid_parameters")
)

// DispatchError is a failed call to a provider. Retryable marks failures a
// later attempt may clear (transport errors, timeouts, 429, 5xx).
type DispatchError struct {
	Provider   string
	StatusCode int
	Code       string
	Message    string
	Retryable  bool
	Err        error
}

func (e *DispatchError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s dispatch failed (status %d): %s", e.Provider, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s dispatch failed: %s", e.Provider, msg)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err is a DispatchError worth retrying.
func IsRetryable(err error) bool {
	var de *DispatchError
	if errors.As(err, &de) {
		return de.Retryable
	}
	return false
}

// Retryable wraps a transient failure.
func Retryable(provider string, statusCode int, err error) *DispatchError {
	return &DispatchError{Provider: provider, StatusCode: statusCode, Retryable: true, Err: err}
}

// Permanent builds a failure no retry can clear.
func Permanent(provider string, statusCode int, code, message string) *DispatchError {
	return &DispatchError{Provider: provider, StatusCode: statusCode, Code: code, Message: message}
}
