package aimodel

import (
	"github.com/smallbiznis/genstudio/internal/aimodel/repository"
	"github.com/smallbiznis/genstudio/internal/aimodel/service"
	"go.uber.org/fx"
)

var Module = fx.Module("aimodel.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
