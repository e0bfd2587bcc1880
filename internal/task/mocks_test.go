package task

import (
	"context"
	"sync"
)

// blockingRunner runs until released or cancelled. Each invocation
// signals started and then waits.
type blockingRunner struct {
	mu      sync.Mutex
	started chan string
	release chan struct{}
	result  string
	err     error
}

func newBlockingRunner() *blockingRunner {
	return &blockingRunner{
		started: make(chan string, 32),
		release: make(chan struct{}),
		result:  "done",
	}
}

func (r *blockingRunner) Run(ctx context.Context, h *Handle) (string, error) {
	r.started <- h.ID()
	select {
	case <-r.release:
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.result, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// orderRunner records the order tasks began executing.
type orderRunner struct {
	mu    sync.Mutex
	order []string
}

func (r *orderRunner) Run(ctx context.Context, h *Handle) (string, error) {
	r.mu.Lock()
	r.order = append(r.order, h.ID())
	r.mu.Unlock()
	return "ok", nil
}

func (r *orderRunner) snapshotOrder() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}
