package rollup

import "go.uber.org/fx"

var Module = fx.Module("rollup.service",
	fx.Provide(NewService),
)
