package posting

import (
	"github.com/smallbiznis/millroll/internal/posting/repository"
	"github.com/smallbiznis/millroll/internal/posting/service"
	"go.uber.org/fx"
)

var Module = fx.Module("posting.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
