package cleanup

import (
	"context"
	"sync"
	"time"
)

type Scheduled struct {
	Reason string
	Keys   []string
	Delay  time.Duration
}

// Recorder is a Scheduler that only remembers what it was asked to do.
type Recorder struct {
	mu    sync.Mutex
	calls []Scheduled
}

func (r *Recorder) Schedule(_ context.Context, reason string, keys []string, delay time.Duration) {
	if len(keys) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, Scheduled{Reason: reason, Keys: append([]string(nil), keys...), Delay: delay})
}

func (r *Recorder) Calls() []Scheduled {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Scheduled(nil), r.calls...)
}

func (r *Recorder) Keys() []string {
	var keys []string
	for _, c := range r.Calls() {
		keys = append(keys, c.Keys...)
	}
	return keys
}
