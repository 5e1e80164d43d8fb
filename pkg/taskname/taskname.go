package taskname

const (
	// Storage tasks
	StorageCleanup = "storage:cleanup"
)

// Queues
const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)
