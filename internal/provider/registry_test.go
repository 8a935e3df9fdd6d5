package provider

import (
	"context"
	"testing"

	"github.com/smallbiznis/genstudio/internal/config"
	"github.com/smallbiznis/genstudio/internal/provider/domain"
	"github.com/smallbiznis/genstudio/internal/provider/kie"
	"github.com/smallbiznis/genstudio/internal/provider/minimax"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingFactory struct {
	name  string
	built int
}

func (f *countingFactory) Provider() string { return f.name }

func (f *countingFactory) NewAdapter(cfg domain.AdapterConfig) (domain.Adapter, error) {
	f.built++
	return &stubAdapter{name: f.name}, nil
}

type stubAdapter struct{ name string }

func (a *stubAdapter) Provider() string { return a.name }

func (a *stubAdapter) Submit(ctx context.Context, req domain.SubmitRequest) (*domain.SubmitResult, error) {
	return &domain.SubmitResult{ExternalJobID: "x"}, nil
}

func (a *stubAdapter) PollStatus(ctx context.Context, req domain.PollRequest) (*domain.JobStatus, error) {
	return &domain.JobStatus{State: domain.StateRunning}, nil
}

func TestRegistryCachesAdapters(t *testing.T) {
	factory := &countingFactory{name: "Stub"}
	registry := NewRegistry(nil, factory)

	assert.True(t, registry.ProviderExists("stub"))
	assert.True(t, registry.ProviderExists(" STUB "))
	assert.False(t, registry.ProviderExists("kie"))

	first, err := registry.Adapter("stub")
	require.NoError(t, err)
	second, err := registry.Adapter("STUB")
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, factory.built)
}

func TestRegistryUnknownProvider(t *testing.T) {
	registry := NewRegistry(nil)
	_, err := registry.Adapter("nope")
	assert.ErrorIs(t, err, domain.ErrProviderNotFound)

	var nilRegistry *Registry
	_, err = nilRegistry.NewAdapter("kie", domain.AdapterConfig{})
	assert.ErrorIs(t, err, domain.ErrProviderNotFound)
}

func TestRegistryCallbackParser(t *testing.T) {
	configs := AdapterConfigs(config.ProvidersConfig{
		Kie:     config.ProviderConfig{APIKey: "k"},
		MiniMax: config.ProviderConfig{APIKey: "m"},
	}, zap.NewNop(), nil)
	registry := NewRegistry(configs, kie.NewFactory(), minimax.NewFactory())

	parser, err := registry.CallbackParser(kie.ProviderName)
	require.NoError(t, err)
	assert.NotNil(t, parser)

	_, err = registry.CallbackParser(minimax.ProviderName)
	assert.ErrorIs(t, err, domain.ErrCallbackIgnored)
}

func TestRegistryMissingKeyFails(t *testing.T) {
	registry := NewRegistry(nil, kie.NewFactory())
	_, err := registry.Adapter(kie.ProviderName)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}
