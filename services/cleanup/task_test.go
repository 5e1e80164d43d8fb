package cleanup

import (
	"context"
	"errors"
	"testing"
	"time"

	"gato-backoffice/pkg/storage"
	"gato-backoffice/pkg/storage/mock"
	"gato-backoffice/pkg/taskname"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fakeEnqueuer struct {
	tasks []*asynq.Task
	opts  [][]asynq.Option
	err   error
}

func (f *fakeEnqueuer) Enqueue(_ context.Context, t *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, t)
	f.opts = append(f.opts, opts)
	return &asynq.TaskInfo{ID: "1", Type: t.Type()}, nil
}

func TestQueueSchedulerEnqueues(t *testing.T) {
	enq := &fakeEnqueuer{}
	s := NewQueueScheduler(enq)

	s.Schedule(context.Background(), "replace-images", []string{"a.jpg", "b.jpg"}, 10*time.Minute)
	s.Schedule(context.Background(), "noop", nil, 0)

	require.Len(t, enq.tasks, 1)
	require.Equal(t, taskname.StorageCleanup, enq.tasks[0].Type())
	require.JSONEq(t, `{"keys":["a.jpg","b.jpg"],"reason":"replace-images"}`, string(enq.tasks[0].Payload()))
	require.Len(t, enq.opts[0], 1)
}

func TestQueueSchedulerSwallowsEnqueueFailure(t *testing.T) {
	s := NewQueueScheduler(&fakeEnqueuer{err: errors.New("redis down")})
	require.NotPanics(t, func() {
		s.Schedule(context.Background(), "delete-work", []string{"covers/x.png"}, 0)
	})
}

func TestHandlerDeletesKeys(t *testing.T) {
	store := storage.NewMemoryStore("https://cdn.example.com")
	_, err := store.Put(context.Background(), "chapters/1/1/a.jpg", []byte("x"), "image/jpeg")
	require.NoError(t, err)

	task, err := NewStorageCleanupTask(Payload{Keys: []string{"chapters/1/1/a.jpg", "missing.jpg"}})
	require.NoError(t, err)

	require.NoError(t, NewHandler(store).ProcessTask(context.Background(), task))
	require.Empty(t, store.Keys())
}

func TestHandlerPropagatesStoreError(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mock.NewMockObjectStore(ctrl)
	store.EXPECT().DeleteMany(gomock.Any(), []string{"k"}).Return(errors.New("503"))

	task, err := NewStorageCleanupTask(Payload{Keys: []string{"k"}})
	require.NoError(t, err)

	require.Error(t, NewHandler(store).ProcessTask(context.Background(), task))
}

func TestHandlerSkipsRetryOnBadPayload(t *testing.T) {
	h := NewHandler(storage.NewMemoryStore(""))
	err := h.ProcessTask(context.Background(), asynq.NewTask(taskname.StorageCleanup, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}
