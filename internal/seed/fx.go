package seed

import "go.uber.org/fx"

// Module runs after migrations; include it after migration.Module.
var Module = fx.Module("seed",
	fx.Invoke(run),
)
