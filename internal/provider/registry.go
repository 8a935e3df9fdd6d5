package provider

import (
	"fmt"
	"strings"
	"sync"

	"github.com/smallbiznis/genstudio/internal/provider/domain"
)

// Registry maps provider names to adapter factories and keeps one adapter per
// provider once it has been built.
type Registry struct {
	factories map[string]domain.AdapterFactory
	configs   map[string]domain.AdapterConfig

	mu       sync.Mutex
	adapters map[string]domain.Adapter
}

func NewRegistry(configs map[string]domain.AdapterConfig, factories ...domain.AdapterFactory) *Registry {
	registry := &Registry{
		factories: map[string]domain.AdapterFactory{},
		configs:   map[string]domain.AdapterConfig{},
		adapters:  map[string]domain.Adapter{},
	}
	for _, factory := range factories {
		if factory == nil {
			continue
		}
		name := normalize(factory.Provider())
		if name == "" {
			continue
		}
		registry.factories[name] = factory
	}
	for name, cfg := range configs {
		registry.configs[normalize(name)] = cfg
	}
	return registry
}

func (r *Registry) ProviderExists(provider string) bool {
	if r == nil {
		return false
	}
	_, ok := r.factories[normalize(provider)]
	return ok
}

// NewAdapter builds a fresh adapter with cfg, bypassing the cache.
func (r *Registry) NewAdapter(provider string, cfg domain.AdapterConfig) (domain.Adapter, error) {
	if r == nil {
		return nil, domain.ErrProviderNotFound
	}
	factory, ok := r.factories[normalize(provider)]
	if !ok {
		return nil, domain.ErrProviderNotFound
	}
	return factory.NewAdapter(cfg)
}

// Adapter returns the adapter for provider built from its registered config.
func (r *Registry) Adapter(provider string) (domain.Adapter, error) {
	if r == nil {
		return nil, domain.ErrProviderNotFound
	}
	name := normalize(provider)

	r.mu.Lock()
	defer r.mu.Unlock()

	if adapter, ok := r.adapters[name]; ok {
		return adapter, nil
	}
	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrProviderNotFound, provider)
	}
	adapter, err := factory.NewAdapter(r.configs[name])
	if err != nil {
		return nil, err
	}
	r.adapters[name] = adapter
	return adapter, nil
}

// CallbackParser returns the adapter for provider when it accepts pushed
// status updates.
func (r *Registry) CallbackParser(provider string) (domain.CallbackParser, error) {
	adapter, err := r.Adapter(provider)
	if err != nil {
		return nil, err
	}
	parser, ok := adapter.(domain.CallbackParser)
	if !ok {
		return nil, fmt.Errorf("%w: %s does not accept callbacks", domain.ErrCallbackIgnored, provider)
	}
	return parser, nil
}

func normalize(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}
