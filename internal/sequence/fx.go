package sequence

import "go.uber.org/fx"

var Module = fx.Module("sequence",
	fx.Provide(NewLocker),
	fx.Provide(NewAllocator),
)
