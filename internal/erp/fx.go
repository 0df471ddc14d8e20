package erp

import "go.uber.org/fx"

var Module = fx.Module("erp.client",
	fx.Provide(
		fx.Annotate(NewHTTPClient, fx.As(new(Client))),
	),
)
