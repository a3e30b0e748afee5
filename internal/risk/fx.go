package risk

import (
	"github.com/smallbiznis/sentinel/internal/cache"
	"github.com/smallbiznis/sentinel/internal/risk/service"
	"go.uber.org/fx"
)

var Module = fx.Module("risk.service",
	fx.Provide(service.NewService),
	fx.Provide(cache.NewRiskResolverCache),
)
