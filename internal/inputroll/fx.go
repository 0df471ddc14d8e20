package inputroll

import (
	"github.com/smallbiznis/millroll/internal/inputroll/repository"
	"github.com/smallbiznis/millroll/internal/inputroll/service"
	"go.uber.org/fx"
)

var Module = fx.Module("inputroll.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
