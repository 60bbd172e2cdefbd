package estimator

import (
	"github.com/geocubed/cubehub/internal/estimator/service"
	"go.uber.org/fx"
)

var Module = fx.Module("estimator.service",
	fx.Provide(service.NewService),
)
