package finance

import "go.uber.org/fx"

var Module = fx.Module("finance.service",
	fx.Provide(NewService),
	fx.Invoke(registerRoutes),
)
