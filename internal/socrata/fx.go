package socrata

import "go.uber.org/fx"

var Module = fx.Module("socrata",
	fx.Provide(NewClient),
)
