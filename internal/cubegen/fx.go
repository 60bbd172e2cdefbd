package cubegen

import (
	"github.com/geocubed/cubehub/internal/cubegen/service"
	"go.uber.org/fx"
)

var Module = fx.Module("cubegen.service",
	fx.Provide(service.NewService),
)
