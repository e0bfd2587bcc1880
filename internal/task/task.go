// Package task implements the one-shot background task manager for animus.
//
// Tasks are asynchronous units of work with a bounded concurrency pool,
// a FIFO wait queue, cooperative cancellation, and an append-only output
// log. The unit of work itself is pluggable via the Runner interface.
package task

import (
	"errors"
	"time"
)

// Status represents the lifecycle state of a task.
// Transitions are monotonic: queued -> running -> {completed, failed, cancelled}.
type Status int32

const (
	StatusQueued Status = iota
	StatusRunning
	StatusCompleted
	StatusFailed
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusQueued:
		return "queued"
	case StatusRunning:
		return "running"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status is a terminal state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Task manager errors.
var (
	// ErrNotFound is returned for an unknown task id.
	ErrNotFound = errors.New("task not found")

	// ErrInvalidState is returned when cancelling an already-terminal task.
	ErrInvalidState = errors.New("task is already terminal")

	// ErrTimeout is returned by Wait when the timeout elapses. The task
	// itself keeps running.
	ErrTimeout = errors.New("timed out waiting for task")

	// ErrCancelled is returned by Wait for a cancelled task.
	ErrCancelled = errors.New("task was cancelled")

	// ErrShutdown is returned by Spawn after the manager has shut down.
	ErrShutdown = errors.New("task manager is shut down")
)

// Task is a snapshot of a one-shot asynchronous unit of work.
// Instances handed out by the manager are copies; mutating them has no
// effect on the managed task.
type Task struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Query       string `json:"query"`

	Status   Status   `json:"status"`
	Progress int      `json:"progress"` // 0-100
	Output   []string `json:"output"`   // append-only log lines
	Result   string   `json:"result"`   // present iff completed
	Error    string   `json:"error"`    // present iff failed

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	CancellationRequested bool `json:"cancellation_requested"`
}

// Filter narrows List results. Zero value matches everything.
type Filter struct {
	// Statuses limits results to the given statuses.
	Statuses []Status

	// CompletedAfter keeps terminal tasks only if they finished at or
	// after this time. Non-terminal tasks always pass.
	CompletedAfter time.Time
}

func (f Filter) matches(t *Task) bool {
	if len(f.Statuses) > 0 {
		ok := false
		for _, s := range f.Statuses {
			if t.Status == s {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if !f.CompletedAfter.IsZero() && t.Status.Terminal() {
		if t.CompletedAt == nil || t.CompletedAt.Before(f.CompletedAfter) {
			return false
		}
	}
	return true
}

// snapshot returns a defensive copy of the task.
func snapshot(t *Task) Task {
	c := *t
	c.Output = append([]string(nil), t.Output...)
	return c
}
