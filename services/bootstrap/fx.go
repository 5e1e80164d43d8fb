package bootstrap

import (
	"context"

	"go.uber.org/fx"
)

var Module = fx.Module("bootstrap",
	fx.Provide(
		NewService,
	),
)

// Migrate runs the schema migration on start and stops the app once done.
var Migrate = fx.Module("bootstrap.migrate",
	fx.Invoke(runMigration),
)

func runMigration(lc fx.Lifecycle, sh fx.Shutdowner, b *Service) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := b.Migrate(ctx); err != nil {
				return err
			}
			return sh.Shutdown()
		},
	})
}
