package methods

import (
	"github.com/smallbiznis/paymatrix/internal/methods/repository"
	"github.com/smallbiznis/paymatrix/internal/methods/service"
	"go.uber.org/fx"
)

var Module = fx.Module("methods.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
