package pricing

import (
	"github.com/smallbiznis/genstudio/internal/pricing/service"
	"go.uber.org/fx"
)

var Module = fx.Module("pricing.resolver",
	fx.Provide(service.NewResolver),
)
