package outputroll

import (
	"github.com/smallbiznis/millroll/internal/outputroll/repository"
	"github.com/smallbiznis/millroll/internal/outputroll/service"
	"go.uber.org/fx"
)

var Module = fx.Module("outputroll.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
