package user

import "go.uber.org/fx"

var Module = fx.Module("user.service",
	fx.Provide(NewService),
	fx.Invoke(registerRoutes),
)

func Models() []any {
	return []any{&User{}}
}
