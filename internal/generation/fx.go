package generation

import (
	"github.com/smallbiznis/genstudio/internal/generation/repository"
	"github.com/smallbiznis/genstudio/internal/generation/service"
	"github.com/smallbiznis/genstudio/internal/generation/domain"
	"github.com/smallbiznis/genstudio/internal/provider"
	"go.uber.org/fx"
)

var Module = fx.Module("generation.service",
	fx.Provide(repository.Provide),
	fx.Provide(func(r *provider.Registry) domain.AdapterResolver { return r }),
	fx.Provide(service.NewService),
)
