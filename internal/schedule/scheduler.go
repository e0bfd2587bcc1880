package schedule

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"animus/internal/bus"
	"animus/internal/logging"
	"animus/internal/task"
)

// TaskSpawner is the scheduler's view of the task manager.
type TaskSpawner interface {
	Spawn(description, query string) (string, error)
	Status(id string) (task.Task, error)
}

// Scheduler owns the set of durable recurring triggers. It is a client
// of the task manager, never the other way around.
type Scheduler struct {
	mu sync.Mutex

	repo  Repository
	tasks TaskSpawner
	bus   *bus.Bus

	schedules map[string]*Schedule
	timers    map[string]*time.Timer
	closed    bool
}

// NewScheduler creates a scheduler. Call Restore before relying on
// persisted schedules.
func NewScheduler(repo Repository, tasks TaskSpawner, b *bus.Bus) *Scheduler {
	return &Scheduler{
		repo:      repo,
		tasks:     tasks,
		bus:       b,
		schedules: make(map[string]*Schedule),
		timers:    make(map[string]*time.Timer),
	}
}

// Create validates and persists a new schedule, then arms its timer.
// The schedule is not committed in memory unless persistence succeeds.
func (s *Scheduler) Create(spec Spec) (*Schedule, error) {
	if spec.Interval <= 0 {
		return nil, fmt.Errorf("%w: interval must be positive", ErrInvalidArgument)
	}
	if spec.Query == "" {
		return nil, fmt.Errorf("%w: query must not be empty", ErrInvalidArgument)
	}
	if spec.Name == "" {
		return nil, fmt.Errorf("%w: name must not be empty", ErrInvalidArgument)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrShutdown
	}

	skip := true
	if spec.SkipIfRunning != nil {
		skip = *spec.SkipIfRunning
	}

	now := time.Now().UTC()
	sched := &Schedule{
		ID:            uuid.NewString(),
		Name:          spec.Name,
		Description:   spec.Description,
		Query:         spec.Query,
		Interval:      spec.Interval,
		MaxRuns:       spec.MaxRuns,
		SkipIfRunning: skip,
		Status:        StatusActive,
		NextRunAt:     now.Add(spec.Interval),
		Tags:          append([]string(nil), spec.Tags...),
		CreatedAt:     now,
	}

	s.schedules[sched.ID] = sched
	if err := s.persistLocked(); err != nil {
		delete(s.schedules, sched.ID)
		return nil, fmt.Errorf("persisting schedule: %w", err)
	}

	s.armLocked(sched)
	logging.Scheduler("Created schedule %s (%s, every %v)", sched.Name, sched.ID, sched.Interval)

	return sched.clone(), nil
}

// Pause stops a schedule's timer and persists the paused state.
func (s *Scheduler) Pause(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sched, ok := s.schedules[id]
	if !ok {
		return ErrNotFound
	}
	if sched.Status == StatusPaused {
		return nil
	}

	before := sched.clone()
	sched.Status = StatusPaused
	if err := s.persistLocked(); err != nil {
		s.schedules[id] = before
		return fmt.Errorf("persisting pause: %w", err)
	}

	s.disarmLocked(id)
	logging.Scheduler("Paused schedule %s", sched.Name)
	return nil
}

// Resume reactivates a paused schedule. The next tick fires one full
// interval from now.
func (s *Scheduler) Resume(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sched, ok := s.schedules[id]
	if !ok {
		return ErrNotFound
	}
	if sched.Status == StatusActive {
		return nil
	}

	before := sched.clone()
	sched.Status = StatusActive
	sched.NextRunAt = time.Now().UTC().Add(sched.Interval)
	if err := s.persistLocked(); err != nil {
		s.schedules[id] = before
		return fmt.Errorf("persisting resume: %w", err)
	}

	s.armLocked(sched)
	logging.Scheduler("Resumed schedule %s", sched.Name)
	return nil
}

// Delete removes a schedule permanently.
func (s *Scheduler) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sched, ok := s.schedules[id]
	if !ok {
		return ErrNotFound
	}

	delete(s.schedules, id)
	if err := s.persistLocked(); err != nil {
		s.schedules[id] = sched
		return fmt.Errorf("persisting delete: %w", err)
	}

	s.disarmLocked(id)
	logging.Scheduler("Deleted schedule %s", sched.Name)
	return nil
}

// TriggerNow fires one tick immediately, independent of the timer and
// without resetting NextRunAt.
func (s *Scheduler) TriggerNow(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sched, ok := s.schedules[id]
	if !ok {
		return ErrNotFound
	}
	if atRunCap(sched) {
		return fmt.Errorf("%w: %s ran %d of %d", ErrMaxRunsReached, sched.Name, sched.RunCount, sched.MaxRuns)
	}

	s.fireLocked(sched, false)
	return nil
}

// Get returns a snapshot of one schedule.
func (s *Scheduler) Get(id string) (*Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sched, ok := s.schedules[id]
	if !ok {
		return nil, ErrNotFound
	}
	return sched.clone(), nil
}

// List returns snapshots of all schedules matching the filter, ordered
// by creation time.
func (s *Scheduler) List(f Filter) []*Schedule {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Schedule, 0, len(s.schedules))
	for _, sched := range s.schedules {
		if f.matches(sched) {
			out = append(out, sched.clone())
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

// Restore loads persisted schedules and recreates timers for active
// ones. Invoked once at workspace open.
//
// NextRunAt for a restored active schedule is recomputed from
// LastRunAt + Interval; if that is already in the past, the next tick
// fires at the next wall-clock multiple of Interval after now. Missed
// ticks during downtime are never replayed.
func (s *Scheduler) Restore() error {
	loaded, err := s.repo.Load()
	if err != nil {
		return fmt.Errorf("loading schedules: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	for _, sched := range loaded {
		s.schedules[sched.ID] = sched
		if sched.Status != StatusActive {
			continue
		}

		sched.NextRunAt = nextAfterRestore(sched, now)
		s.armLocked(sched)
	}

	logging.Scheduler("Restored %d schedules", len(loaded))
	return nil
}

// nextAfterRestore computes the first post-restore tick time.
func nextAfterRestore(sched *Schedule, now time.Time) time.Time {
	if sched.LastRunAt == nil {
		return now.Add(sched.Interval)
	}
	next := sched.LastRunAt.Add(sched.Interval)
	if next.After(now) {
		return next
	}
	// Advance by whole intervals past now; exactly one tick fires at the
	// next multiple, the rest are dropped.
	missed := now.Sub(*sched.LastRunAt) / sched.Interval
	return sched.LastRunAt.Add((missed + 1) * sched.Interval)
}

// Shutdown stops all timers without persisting any state change.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	for id := range s.timers {
		s.disarmLocked(id)
	}
	logging.Scheduler("Scheduler shut down")
}

// -----------------------------------------------------------------------------
// Tick machinery
// -----------------------------------------------------------------------------

// armLocked schedules the next timer fire for an active schedule.
// Caller holds s.mu.
func (s *Scheduler) armLocked(sched *Schedule) {
	if s.closed || sched.Status != StatusActive {
		return
	}

	s.disarmLocked(sched.ID)

	delay := time.Until(sched.NextRunAt)
	if delay < 0 {
		delay = 0
	}
	id := sched.ID
	s.timers[id] = time.AfterFunc(delay, func() { s.onTick(id) })
}

// disarmLocked stops a schedule's timer if armed. Caller holds s.mu.
func (s *Scheduler) disarmLocked(id string) {
	if t, ok := s.timers[id]; ok {
		t.Stop()
		delete(s.timers, id)
	}
}

// onTick is the timer callback. Ticks for one schedule are strictly
// sequential: the next timer is armed only after this tick's outcome is
// recorded under the lock.
func (s *Scheduler) onTick(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	sched, ok := s.schedules[id]
	if !ok || sched.Status != StatusActive {
		return
	}

	// Missed ticks are not queued up: the next fire is always one
	// interval past the scheduled one.
	sched.NextRunAt = sched.NextRunAt.Add(sched.Interval)

	s.fireLocked(sched, true)

	if sched.Status == StatusActive {
		s.armLocked(sched)
	}
}

// fireLocked evaluates one tick for the schedule: skip, spawn, count,
// maybe auto-pause, persist, emit. Caller holds s.mu.
func (s *Scheduler) fireLocked(sched *Schedule, fromTimer bool) {
	before := sched.clone()

	// RunCount never exceeds MaxRuns, whatever path led here. A capped
	// schedule reactivated by Resume re-pauses on its first tick instead
	// of running once more.
	if atRunCap(sched) {
		sched.Status = StatusPaused
		if err := s.persistLocked(); err != nil {
			*sched = *before
			logging.Get(logging.CategoryScheduler).Error("Persist failed re-pausing capped %s: %v", sched.Name, err)
			return
		}
		s.disarmLocked(sched.ID)
		s.publish(bus.EventSchedulePaused, sched)
		logging.Scheduler("Schedule %s is at max runs (%d), not firing", sched.Name, sched.MaxRuns)
		return
	}

	if sched.SkipIfRunning && s.lastTaskRunningLocked(sched) {
		if err := s.persistLocked(); err != nil {
			*sched = *before
			logging.Get(logging.CategoryScheduler).Error("Persist failed for skipped tick of %s: %v", sched.Name, err)
			return
		}
		s.publish(bus.EventScheduleSkipped, sched)
		logging.SchedulerDebug("Skipped tick for %s: previous task still running", sched.Name)
		return
	}

	taskID, err := s.tasks.Spawn(fmt.Sprintf("schedule:%s", sched.Name), sched.Query)
	if err != nil {
		// Spawn failures do not count as runs.
		*sched = *before
		logging.Get(logging.CategoryScheduler).Error("Spawn failed for %s: %v", sched.Name, err)
		return
	}

	now := time.Now().UTC()
	sched.LastTaskID = taskID
	sched.RunCount++
	sched.LastRunAt = &now

	paused := false
	if atRunCap(sched) {
		sched.Status = StatusPaused
		paused = true
	}

	if err := s.persistLocked(); err != nil {
		// The spawned task exists either way, but the run must not be
		// counted if it cannot be recorded durably. Rolled back in place
		// so the tick path sees the restored state when deciding whether
		// to re-arm.
		*sched = *before
		sched.LastTaskID = taskID
		logging.Get(logging.CategoryScheduler).Error("Persist failed for tick of %s: %v", sched.Name, err)
		return
	}

	s.publish(bus.EventScheduleFired, sched)
	logging.Scheduler("Schedule %s fired (run %d, task %s)", sched.Name, sched.RunCount, taskID)

	if paused {
		s.disarmLocked(sched.ID)
		s.publish(bus.EventSchedulePaused, sched)
		logging.Scheduler("Schedule %s reached max runs (%d), paused", sched.Name, sched.MaxRuns)
	}
}

// atRunCap reports whether a capped schedule has used all its runs.
func atRunCap(sched *Schedule) bool {
	return sched.MaxRuns > 0 && sched.RunCount >= sched.MaxRuns
}

// lastTaskRunningLocked reports whether the most recently spawned task
// is still non-terminal.
func (s *Scheduler) lastTaskRunningLocked(sched *Schedule) bool {
	if sched.LastTaskID == "" {
		return false
	}
	t, err := s.tasks.Status(sched.LastTaskID)
	if err != nil {
		return false
	}
	return !t.Status.Terminal()
}

// persistLocked rewrites the durable schedule set, retrying once on
// failure. Caller holds s.mu.
func (s *Scheduler) persistLocked() error {
	snap := make([]*Schedule, 0, len(s.schedules))
	for _, sched := range s.schedules {
		snap = append(snap, sched.clone())
	}
	sort.Slice(snap, func(i, j int) bool {
		if snap[i].CreatedAt.Equal(snap[j].CreatedAt) {
			return snap[i].ID < snap[j].ID
		}
		return snap[i].CreatedAt.Before(snap[j].CreatedAt)
	})

	err := s.repo.SaveAll(snap)
	if err != nil {
		logging.Get(logging.CategoryScheduler).Warn("SaveAll failed, retrying: %v", err)
		err = s.repo.SaveAll(snap)
	}
	return err
}

func (s *Scheduler) publish(eventType bus.EventType, sched *Schedule) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventType, map[string]interface{}{
		"schedule_id": sched.ID,
		"name":        sched.Name,
		"run_count":   sched.RunCount,
	})
}
