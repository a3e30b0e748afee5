package reference

import "go.uber.org/fx"

// Module wires the read-only lookup repository. There is no table behind
// it: boroughs and datasets derive from scoring config at startup.
var Module = fx.Module("reference",
	fx.Provide(NewRepository),
)
