package moderation

import "go.uber.org/fx"

var Module = fx.Module("moderation.service",
	fx.Provide(NewService),
	fx.Invoke(registerRoutes),
)

func Models() []any {
	return []any{&Comment{}, &Post{}, &Report{}}
}
