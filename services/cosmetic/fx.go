package cosmetic

import "go.uber.org/fx"

var Module = fx.Module("cosmetic.service",
	fx.Provide(NewService),
	fx.Invoke(registerRoutes),
)

func Models() []any {
	return []any{&Cosmetic{}, &UserCosmetic{}}
}
