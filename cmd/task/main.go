package main

import (
	"log"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"gato-backoffice/pkg/config"
	"gato-backoffice/pkg/hashistack/secretmanager"
	"gato-backoffice/pkg/logger"
	"gato-backoffice/pkg/otelcol"
	"gato-backoffice/pkg/storage"
	"gato-backoffice/pkg/task"
	"gato-backoffice/services/cleanup"
)

// The worker only needs object storage: storage:cleanup tasks carry keys.
func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		otelcol.Module,
		storage.Module,
		task.Server,
		cleanup.Worker,
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
	return fxevent.NopLogger
})
