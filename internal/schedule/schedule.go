// Package schedule implements the durable recurring-schedule engine for animus.
//
// A schedule is a named recurring trigger that spawns tasks on an
// interval. Every mutation is persisted before it is considered
// committed; at startup Restore rebuilds timers from the durable store.
package schedule

import (
	"errors"
	"time"
)

// Status represents a schedule's state.
type Status string

const (
	StatusActive Status = "active"
	StatusPaused Status = "paused"
)

// Scheduler errors.
var (
	// ErrNotFound is returned for an unknown schedule id.
	ErrNotFound = errors.New("schedule not found")

	// ErrInvalidArgument is returned for a non-positive interval or an
	// empty query.
	ErrInvalidArgument = errors.New("invalid schedule argument")

	// ErrMaxRunsReached is returned when a trigger would push a capped
	// schedule past its run limit.
	ErrMaxRunsReached = errors.New("schedule reached max runs")

	// ErrShutdown is returned after the scheduler has shut down.
	ErrShutdown = errors.New("scheduler is shut down")
)

// Schedule is a durable, named recurring trigger.
type Schedule struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Query       string `json:"query"`

	// Interval between ticks. Must be positive.
	Interval time.Duration `json:"interval"`

	// MaxRuns caps total runs; 0 means unlimited. The schedule pauses
	// automatically when RunCount reaches MaxRuns.
	MaxRuns  int `json:"max_runs,omitempty"`
	RunCount int `json:"run_count"`

	// SkipIfRunning skips a tick while the previously spawned task is
	// still non-terminal. Defaults to true.
	SkipIfRunning bool `json:"skip_if_running"`

	Status    Status     `json:"status"`
	NextRunAt time.Time  `json:"next_run_at"`
	LastRunAt *time.Time `json:"last_run_at,omitempty"`

	// LastTaskID is the most recently spawned task, consulted by the
	// SkipIfRunning policy.
	LastTaskID string `json:"last_task_id,omitempty"`

	Tags      []string  `json:"tags,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// clone returns a deep copy of the schedule.
func (s *Schedule) clone() *Schedule {
	c := *s
	c.Tags = append([]string(nil), s.Tags...)
	if s.LastRunAt != nil {
		t := *s.LastRunAt
		c.LastRunAt = &t
	}
	return &c
}

// Spec describes a schedule to create.
type Spec struct {
	Name        string
	Description string
	Query       string
	Interval    time.Duration
	MaxRuns     int
	Tags        []string

	// SkipIfRunning defaults to true when nil.
	SkipIfRunning *bool
}

// Filter narrows List results. Zero value matches everything.
type Filter struct {
	Status Status   // empty matches any status
	Tags   []string // all listed tags must be present
}

func (f Filter) matches(s *Schedule) bool {
	if f.Status != "" && s.Status != f.Status {
		return false
	}
	for _, want := range f.Tags {
		found := false
		for _, have := range s.Tags {
			if have == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Repository is the durable store for schedules. SaveAll rewrites the
// full set atomically; Load returns everything persisted.
type Repository interface {
	Load() ([]*Schedule, error)
	SaveAll(schedules []*Schedule) error
}
