package machine

import (
	"github.com/smallbiznis/millroll/internal/machine/repository"
	"github.com/smallbiznis/millroll/internal/machine/service"
	"go.uber.org/fx"
)

var Module = fx.Module("machine.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
