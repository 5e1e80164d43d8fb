package cleanup

import (
	"gato-backoffice/pkg/task"

	"go.uber.org/fx"
)

// Module provides the Scheduler for API processes.
var Module = fx.Module("cleanup.scheduler",
	fx.Provide(NewQueueScheduler),
)

// Worker registers the storage:cleanup handler on the asynq server.
var Worker = fx.Module("cleanup.worker",
	fx.Provide(task.AsHandler(NewHandler)),
)
