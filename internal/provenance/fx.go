package provenance

import "go.uber.org/fx"

var Module = fx.Module("provenance",
	fx.Provide(NewHistory),
	fx.Provide(New),
)
