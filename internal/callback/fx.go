package callback

import (
	"github.com/geocubed/cubehub/internal/callback/service"
	"go.uber.org/fx"
)

var Module = fx.Module("callback.service",
	fx.Provide(service.NewService),
)
