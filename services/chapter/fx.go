package chapter

import (
	"gato-backoffice/services/catalog"

	"go.uber.org/fx"
)

var Module = fx.Module("chapter.service",
	fx.Provide(
		NewService,
		func(s *Service) catalog.ContentPurger { return s },
	),
	fx.Invoke(registerRoutes),
)

func Models() []any {
	return []any{&Chapter{}, &Unlock{}}
}
