package export

import (
	"github.com/smallbiznis/paymatrix/internal/export/repository"
	"github.com/smallbiznis/paymatrix/internal/export/service"
	"github.com/smallbiznis/paymatrix/internal/export/sheets"
	"go.uber.org/fx"
)

var Module = fx.Module("export.service",
	fx.Provide(repository.Provide),
	fx.Provide(sheets.New),
	fx.Provide(service.New),
)
