package task

import (
	"context"
	"fmt"
)

// Handle is the running unit of work's view of its own task. It is the
// only way a Runner may mutate task state while executing.
type Handle struct {
	m   *Manager
	id  string
	ctx context.Context
}

// ID returns the task id.
func (h *Handle) ID() string { return h.id }

// Context returns the task's cancellation context. Runners must treat
// every await on this context as a suspension point.
func (h *Handle) Context() context.Context { return h.ctx }

// Cancelled reports whether cancellation has been requested. Cooperative:
// the runner decides when to act on it.
func (h *Handle) Cancelled() bool {
	h.m.mu.Lock()
	defer h.m.mu.Unlock()
	rec, ok := h.m.tasks[h.id]
	if !ok {
		return true
	}
	return rec.task.CancellationRequested
}

// Task returns a snapshot of the task, including its query.
func (h *Handle) Task() Task {
	t, _ := h.m.Status(h.id)
	return t
}

// AppendOutput appends a line to the task's output log.
func (h *Handle) AppendOutput(line string) {
	h.m.mu.Lock()
	defer h.m.mu.Unlock()
	rec, ok := h.m.tasks[h.id]
	if !ok {
		return
	}
	rec.task.Output = append(rec.task.Output, line)
}

// SetProgress updates the task's progress, clamped to 0-100.
func (h *Handle) SetProgress(p int) {
	if p < 0 {
		p = 0
	}
	if p > 100 {
		p = 100
	}
	h.m.mu.Lock()
	defer h.m.mu.Unlock()
	rec, ok := h.m.tasks[h.id]
	if !ok {
		return
	}
	rec.task.Progress = p
}

// execError carries a captured execution failure back out of Wait.
type execError struct {
	message string
}

func (e *execError) Error() string {
	if e.message == "" {
		return "task failed"
	}
	return fmt.Sprintf("task failed: %s", e.message)
}

// panicError wraps a recovered panic value from a runner.
type panicError struct {
	value interface{}
}

func (e *panicError) Error() string {
	return fmt.Sprintf("task panicked: %v", e.value)
}
