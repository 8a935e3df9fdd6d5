package guard

import (
	"testing"
	"time"

	generationdomain "github.com/smallbiznis/genstudio/internal/generation/domain"
	"github.com/stretchr/testify/assert"
)

func TestEnsureJobCanExpire(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	dispatched := created.Add(time.Minute)

	pending := &generationdomain.Job{Status: generationdomain.StatusPending, CreatedAt: created}
	processing := &generationdomain.Job{Status: generationdomain.StatusProcessing, CreatedAt: created, DispatchedAt: &dispatched}
	done := &generationdomain.Job{Status: generationdomain.StatusCompleted, CreatedAt: created}

	assert.NoError(t, EnsureJobCanExpire(pending, created.Add(2*time.Minute), 2*time.Minute))
	assert.ErrorIs(t, EnsureJobCanExpire(processing, created.Add(10*time.Minute), 10*time.Minute), ErrJobNotStale)
	assert.NoError(t, EnsureJobCanExpire(processing, dispatched.Add(10*time.Minute), 10*time.Minute))
	assert.ErrorIs(t, EnsureJobCanExpire(done, created.Add(time.Hour), time.Minute), ErrJobTerminal)
	assert.Equal(t, dispatched, StalenessStart(processing))
}
