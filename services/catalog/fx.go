package catalog

import "go.uber.org/fx"

var Module = fx.Module("catalog.service",
	fx.Provide(NewService),
	fx.Invoke(registerRoutes),
)

func Models() []any {
	return []any{&Work{}, &WorkStaff{}}
}
