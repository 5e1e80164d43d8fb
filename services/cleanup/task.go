package cleanup

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gato-backoffice/pkg/storage"
	"gato-backoffice/pkg/task"
	"gato-backoffice/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

type Payload struct {
	Keys   []string `json:"keys"`
	Reason string   `json:"reason"`
}

func NewStorageCleanupTask(p Payload) (*asynq.Task, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskname.StorageCleanup, b, asynq.Queue(taskname.QueueLow), asynq.MaxRetry(10)), nil
}

// Scheduler queues storage keys for out-of-band deletion. Objects left behind
// by rolled back or replaced writes are garbage, never a caller error.
type Scheduler interface {
	Schedule(ctx context.Context, reason string, keys []string, delay time.Duration)
}

type QueueScheduler struct {
	enqueuer task.Enqueuer
}

func NewQueueScheduler(enqueuer task.Enqueuer) Scheduler {
	return &QueueScheduler{enqueuer: enqueuer}
}

func (s *QueueScheduler) Schedule(ctx context.Context, reason string, keys []string, delay time.Duration) {
	if len(keys) == 0 {
		return
	}

	t, err := NewStorageCleanupTask(Payload{Keys: keys, Reason: reason})
	if err != nil {
		zap.L().Warn("failed to build storage cleanup task", zap.String("reason", reason), zap.Error(err))
		return
	}

	var opts []asynq.Option
	if delay > 0 {
		opts = append(opts, asynq.ProcessIn(delay))
	}

	if _, err := s.enqueuer.Enqueue(ctx, t, opts...); err != nil {
		zap.L().Warn("failed to enqueue storage cleanup, objects left orphaned",
			zap.String("reason", reason), zap.Strings("keys", keys), zap.Error(err))
	}
}

// Handler deletes the keys of a storage:cleanup task.
type Handler struct {
	store storage.ObjectStore
}

func NewHandler(store storage.ObjectStore) *Handler {
	return &Handler{store: store}
}

func (h *Handler) Pattern() string {
	return taskname.StorageCleanup
}

func (h *Handler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var p Payload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	if err := h.store.DeleteMany(ctx, p.Keys); err != nil {
		zap.L().Error("storage cleanup failed", zap.String("reason", p.Reason), zap.Int("keys", len(p.Keys)), zap.Error(err))
		return err
	}

	zap.L().Info("storage cleanup done", zap.String("reason", p.Reason), zap.Int("keys", len(p.Keys)))
	return nil
}
