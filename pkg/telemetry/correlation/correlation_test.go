package correlation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnsureCorrelationIDGeneratesOnce(t *testing.T) {
	ctx, first := EnsureCorrelationID(context.Background())
	assert.NotEmpty(t, first)

	_, second := EnsureCorrelationID(ctx)
	assert.Equal(t, first, second)
}

func TestContextWithCorrelationIDIgnoresBlank(t *testing.T) {
	ctx := ContextWithCorrelationID(context.Background(), "  ")
	assert.Empty(t, ExtractCorrelationID(ctx))

	ctx = ContextWithCorrelationID(ctx, "job-123")
	assert.Equal(t, "job-123", ExtractCorrelationID(ctx))
}
