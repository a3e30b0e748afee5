package portfolio

import (
	"github.com/smallbiznis/sentinel/internal/portfolio/service"
	"go.uber.org/fx"
)

var Module = fx.Module("portfolio.service",
	fx.Provide(service.NewService),
)
