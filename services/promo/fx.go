package promo

import "go.uber.org/fx"

var Module = fx.Module("promo.service",
	fx.Provide(NewService),
	fx.Invoke(registerRoutes),
)

func Models() []any {
	return []any{&PromoCode{}, &Redemption{}}
}
