package main

import (
	"log"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"gato-backoffice/pkg/access"
	"gato-backoffice/pkg/config"
	"gato-backoffice/pkg/db"
	"gato-backoffice/pkg/featureflags"
	"gato-backoffice/pkg/gen"
	"gato-backoffice/pkg/hashistack/secretmanager"
	"gato-backoffice/pkg/health"
	"gato-backoffice/pkg/httpapi"
	"gato-backoffice/pkg/logger"
	"gato-backoffice/pkg/otelcol"
	"gato-backoffice/pkg/profiling"
	"gato-backoffice/pkg/redis"
	"gato-backoffice/pkg/sequence"
	"gato-backoffice/pkg/server"
	"gato-backoffice/pkg/storage"
	"gato-backoffice/pkg/task"
	"gato-backoffice/services/catalog"
	"gato-backoffice/services/chapter"
	"gato-backoffice/services/cleanup"
	"gato-backoffice/services/cosmetic"
	"gato-backoffice/services/finance"
	"gato-backoffice/services/ledger"
	"gato-backoffice/services/moderation"
	"gato-backoffice/services/promo"
	"gato-backoffice/services/user"
)

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		otelcol.Module,
		profiling.Module,
		db.Module,
		redis.Module,
		gen.Module,
		sequence.Module,
		storage.Module,
		access.Module,
		featureflags.Module,
		health.Module,
		task.Client,
		cleanup.Module,
		httpapi.Module,
		user.Module,
		ledger.Module,
		promo.Module,
		catalog.Module,
		chapter.Module,
		moderation.Module,
		cosmetic.Module,
		finance.Module,
		server.ProvideHTTPServer,
		fxLogger,
	}
	if secretmanager.Enabled() {
		opts = append(opts, secretmanager.Module)
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	if cfg.AppEnv == "production" {
		return fxevent.NopLogger
	}
	return &fxevent.ZapLogger{Logger: logger}
})
