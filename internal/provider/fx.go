package provider

import (
	"github.com/smallbiznis/genstudio/internal/config"
	obsmetrics "github.com/smallbiznis/genstudio/internal/observability/metrics"
	"github.com/smallbiznis/genstudio/internal/provider/domain"
	"github.com/smallbiznis/genstudio/internal/provider/elevenlabs"
	"github.com/smallbiznis/genstudio/internal/provider/kie"
	"github.com/smallbiznis/genstudio/internal/provider/minimax"
	"github.com/smallbiznis/genstudio/internal/storage"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("provider.registry",
	fx.Provide(NewFromConfig),
)

type Params struct {
	fx.In

	Config  config.Config
	Log     *zap.Logger
	Store   storage.Store
	Metrics *obsmetrics.Metrics `optional:"true"`
}

func NewFromConfig(p Params) *Registry {
	return NewRegistry(
		AdapterConfigs(p.Config.Providers, p.Log, p.Metrics),
		kie.NewFactory(),
		minimax.NewFactory(),
		elevenlabs.NewFactory(p.Store),
	)
}

// AdapterConfigs turns the provider section of the app config into per-adapter settings.
func AdapterConfigs(cfg config.ProvidersConfig, log *zap.Logger, metrics *obsmetrics.Metrics) map[string]domain.AdapterConfig {
	build := func(pc config.ProviderConfig) domain.AdapterConfig {
		return domain.AdapterConfig{
			APIKey:         pc.APIKey,
			BaseURL:        pc.BaseURL,
			Timeout:        pc.Timeout,
			MaxRetries:     pc.MaxRetries,
			RetryBaseDelay: pc.RetryBaseDelay,
			Log:            log,
			Metrics:        metrics,
		}
	}
	return map[string]domain.AdapterConfig{
		kie.ProviderName:        build(cfg.Kie),
		minimax.ProviderName:    build(cfg.MiniMax),
		elevenlabs.ProviderName: build(cfg.ElevenLabs),
	}
}
