package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(Retryable("kie", 503, errors.New("unavailable"))))
	assert.True(t, IsRetryable(fmt.Errorf("submit: %w", Retryable("kie", 0, context.DeadlineExceeded))))
	assert.False(t, IsRetryable(Permanent("kie", 400, "400", "bad prompt")))
	assert.False(t, IsRetryable(errors.New("plain")))
}

func TestDispatchErrorMessage(t *testing.T) {
	err := Permanent("minimax", 200, "1004", "auth failed")
	assert.Equal(t, "minimax dispatch failed (status 200): auth failed", err.Error())

	wrapped := Retryable("kie", 0, context.DeadlineExceeded)
	assert.ErrorIs(t, wrapped, context.DeadlineExceeded)
	assert.Equal(t, "kie dispatch failed: context deadline exceeded", wrapped.Error())
}

func TestJobStatusTerminal(t *testing.T) {
	assert.False(t, JobStatus{State: StateQueued}.Terminal())
	assert.False(t, JobStatus{State: StateRunning}.Terminal())
	assert.True(t, JobStatus{State: StateCompleted}.Terminal())
	assert.True(t, JobStatus{State: StateFailed}.Terminal())
}
