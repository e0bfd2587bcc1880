package task

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"animus/internal/bus"
	"animus/internal/logging"
)

// =============================================================================
// TASK MANAGER - BOUNDED CONCURRENCY WITH FIFO QUEUEING
// =============================================================================
//
// A fixed-size pool of execution slots pulls from the queue head whenever
// a slot frees up. A task's terminal status and the freed slot are set
// under one lock with the next queue pull, so no two pulls can claim the
// same slot and FIFO order is preserved.

// Config configures the task manager.
type Config struct {
	// MaxConcurrent is the number of execution slots. Default: 3.
	MaxConcurrent int

	// DefaultWaitTimeout applies when Wait is called with timeout <= 0.
	// Default: 5 minutes.
	DefaultWaitTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent:      3,
		DefaultWaitTimeout: 5 * time.Minute,
	}
}

// Metrics provides observability into manager state.
type Metrics struct {
	Running        int
	Queued         int
	TotalSpawned   int64
	TotalCompleted int64
	TotalFailed    int64
	TotalCancelled int64
}

// record is the manager's internal bookkeeping for one task.
type record struct {
	task   *Task
	cancel context.CancelFunc
	done   chan struct{}
}

// Manager runs one-shot asynchronous tasks with bounded concurrency.
type Manager struct {
	mu sync.Mutex

	cfg    Config
	runner Runner
	bus    *bus.Bus

	tasks   map[string]*record
	queue   []string // FIFO of queued task ids
	running int
	closed  bool

	wg sync.WaitGroup

	totalSpawned   int64
	totalCompleted int64
	totalFailed    int64
	totalCancelled int64
}

// NewManager creates a task manager. runner executes each task's unit of
// work; b receives lifecycle events and may be nil in tests.
func NewManager(runner Runner, b *bus.Bus, cfg Config) *Manager {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 3
	}
	if cfg.DefaultWaitTimeout <= 0 {
		cfg.DefaultWaitTimeout = 5 * time.Minute
	}

	logging.Task("Creating task manager (max concurrent: %d)", cfg.MaxConcurrent)

	return &Manager{
		cfg:    cfg,
		runner: runner,
		bus:    b,
		tasks:  make(map[string]*record),
	}
}

// Spawn registers a new task and returns its id immediately. The task
// starts right away if a slot is free, otherwise it joins the FIFO queue.
func (m *Manager) Spawn(description, query string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return "", ErrShutdown
	}

	t := &Task{
		ID:          uuid.NewString(),
		Description: description,
		Query:       query,
		Status:      StatusQueued,
		CreatedAt:   time.Now().UTC(),
	}
	rec := &record{task: t, done: make(chan struct{})}
	m.tasks[t.ID] = rec
	atomic.AddInt64(&m.totalSpawned, 1)

	m.publish(bus.EventTaskQueued, t.ID, StatusQueued)
	logging.TaskDebug("Spawned task %s (%s)", t.ID, description)

	if m.running < m.cfg.MaxConcurrent {
		m.startLocked(rec)
	} else {
		m.queue = append(m.queue, t.ID)
	}

	return t.ID, nil
}

// startLocked moves a queued task into a free slot. Caller holds m.mu.
func (m *Manager) startLocked(rec *record) {
	now := time.Now().UTC()
	rec.task.Status = StatusRunning
	rec.task.StartedAt = &now
	m.running++

	ctx, cancel := context.WithCancel(context.Background())
	rec.cancel = cancel

	m.publish(bus.EventTaskRunning, rec.task.ID, StatusRunning)
	logging.TaskDebug("Task %s running (%d/%d slots)", rec.task.ID, m.running, m.cfg.MaxConcurrent)

	m.wg.Add(1)
	go m.run(ctx, rec)
}

// run executes the unit of work and records the terminal state.
func (m *Manager) run(ctx context.Context, rec *record) {
	defer m.wg.Done()
	defer rec.cancel()

	h := &Handle{m: m, id: rec.task.ID, ctx: ctx}

	result, err := m.safeRun(ctx, h)

	m.mu.Lock()
	now := time.Now().UTC()
	t := rec.task
	switch {
	case err == nil:
		t.Status = StatusCompleted
		t.Result = result
		t.Progress = 100
		atomic.AddInt64(&m.totalCompleted, 1)
	case t.CancellationRequested || ctx.Err() != nil:
		t.Status = StatusCancelled
		atomic.AddInt64(&m.totalCancelled, 1)
	default:
		t.Status = StatusFailed
		t.Error = err.Error()
		atomic.AddInt64(&m.totalFailed, 1)
	}
	t.CompletedAt = &now
	m.running--
	close(rec.done)

	m.publish(eventFor(t.Status), t.ID, t.Status)
	logging.Task("Task %s %s", t.ID, t.Status)

	// Freed slot and next pull happen under the same lock as the
	// terminal transition.
	m.pullLocked()
	m.mu.Unlock()
}

// safeRun invokes the runner, converting panics into errors so one bad
// unit of work never crashes the manager.
func (m *Manager) safeRun(ctx context.Context, h *Handle) (result string, err error) {
	defer func() {
		if r := recover(); r != nil {
			logging.Get(logging.CategoryTask).Error("Task %s panicked: %v", h.id, r)
			err = &panicError{value: r}
		}
	}()
	return m.runner.Run(ctx, h)
}

// pullLocked starts queued tasks while slots are free. Caller holds m.mu.
func (m *Manager) pullLocked() {
	for m.running < m.cfg.MaxConcurrent && len(m.queue) > 0 {
		id := m.queue[0]
		m.queue = m.queue[1:]
		rec, ok := m.tasks[id]
		if !ok || rec.task.Status != StatusQueued {
			continue
		}
		m.startLocked(rec)
	}
}

// Status returns a snapshot of the task with the given id.
func (m *Manager) Status(id string) (Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.tasks[id]
	if !ok {
		return Task{}, ErrNotFound
	}
	return snapshot(rec.task), nil
}

// List returns snapshots of all tasks matching the filter, ordered by
// creation time.
func (m *Manager) List(f Filter) []Task {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Task, 0, len(m.tasks))
	for _, rec := range m.tasks {
		if f.matches(rec.task) {
			out = append(out, snapshot(rec.task))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Output returns a snapshot of the task's output log.
func (m *Manager) Output(id string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]string(nil), rec.task.Output...), nil
}

// Cancel requests cancellation of a task.
//
// A queued task is removed from the queue and reaches its terminal state
// synchronously. A running task only has its cancellation flag set and
// its context cancelled; the unit of work observes both at its next
// suspension point. Cancelling a terminal task is an error.
func (m *Manager) Cancel(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.tasks[id]
	if !ok {
		return ErrNotFound
	}
	t := rec.task

	switch t.Status {
	case StatusQueued:
		for i, qid := range m.queue {
			if qid == id {
				m.queue = append(m.queue[:i], m.queue[i+1:]...)
				break
			}
		}
		now := time.Now().UTC()
		t.Status = StatusCancelled
		t.CancellationRequested = true
		t.CompletedAt = &now
		atomic.AddInt64(&m.totalCancelled, 1)
		close(rec.done)
		m.publish(bus.EventTaskCancelled, id, StatusCancelled)
		logging.Task("Task %s cancelled while queued", id)
		return nil

	case StatusRunning:
		t.CancellationRequested = true
		rec.cancel()
		logging.Task("Task %s cancellation requested", id)
		return nil

	default:
		return ErrInvalidState
	}
}

// Wait blocks the caller until the task reaches a terminal state or the
// timeout elapses. Timing out never cancels the task.
func (m *Manager) Wait(id string, timeout time.Duration) (string, error) {
	m.mu.Lock()
	rec, ok := m.tasks[id]
	m.mu.Unlock()
	if !ok {
		return "", ErrNotFound
	}

	if timeout <= 0 {
		timeout = m.cfg.DefaultWaitTimeout
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-rec.done:
	case <-timer.C:
		return "", ErrTimeout
	}

	t, err := m.Status(id)
	if err != nil {
		return "", err
	}
	switch t.Status {
	case StatusCompleted:
		return t.Result, nil
	case StatusCancelled:
		return "", ErrCancelled
	default:
		return "", &execError{message: t.Error}
	}
}

// RunningCount returns the number of tasks currently holding a slot.
func (m *Manager) RunningCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// GetMetrics returns current manager metrics.
func (m *Manager) GetMetrics() Metrics {
	m.mu.Lock()
	running := m.running
	queued := len(m.queue)
	m.mu.Unlock()

	return Metrics{
		Running:        running,
		Queued:         queued,
		TotalSpawned:   atomic.LoadInt64(&m.totalSpawned),
		TotalCompleted: atomic.LoadInt64(&m.totalCompleted),
		TotalFailed:    atomic.LoadInt64(&m.totalFailed),
		TotalCancelled: atomic.LoadInt64(&m.totalCancelled),
	}
}

// Shutdown stops accepting spawns, cancels queued and running tasks, and
// waits for running units of work to observe cancellation, bounded by ctx.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true

	now := time.Now().UTC()
	for _, id := range m.queue {
		rec, ok := m.tasks[id]
		if !ok || rec.task.Status != StatusQueued {
			continue
		}
		t := rec.task
		t.Status = StatusCancelled
		t.CancellationRequested = true
		completed := now
		t.CompletedAt = &completed
		atomic.AddInt64(&m.totalCancelled, 1)
		close(rec.done)
		m.publish(bus.EventTaskCancelled, id, StatusCancelled)
	}
	m.queue = nil

	for _, rec := range m.tasks {
		if rec.task.Status == StatusRunning {
			rec.task.CancellationRequested = true
			rec.cancel()
		}
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logging.Task("Task manager shut down")
		return nil
	case <-ctx.Done():
		logging.Get(logging.CategoryTask).Warn("Task manager shutdown timed out")
		return ctx.Err()
	}
}

// publish emits a lifecycle event if a bus is configured.
func (m *Manager) publish(eventType bus.EventType, id string, status Status) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(eventType, map[string]interface{}{
		"task_id": id,
		"status":  status.String(),
	})
}

func eventFor(s Status) bus.EventType {
	switch s {
	case StatusCompleted:
		return bus.EventTaskCompleted
	case StatusFailed:
		return bus.EventTaskFailed
	default:
		return bus.EventTaskCancelled
	}
}
