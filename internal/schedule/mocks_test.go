package schedule

import (
	"errors"
	"fmt"
	"sync"

	"animus/internal/task"
)

// memoryRepo is an in-memory Repository with scriptable failures.
type memoryRepo struct {
	mu        sync.Mutex
	saved     []*Schedule
	saveCalls int
	failNext  int // fail this many upcoming SaveAll calls
}

func (r *memoryRepo) Load() ([]*Schedule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Schedule, 0, len(r.saved))
	for _, s := range r.saved {
		out = append(out, s.clone())
	}
	return out, nil
}

func (r *memoryRepo) SaveAll(schedules []*Schedule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saveCalls++
	if r.failNext > 0 {
		r.failNext--
		return errors.New("save failed")
	}
	r.saved = make([]*Schedule, 0, len(schedules))
	for _, s := range schedules {
		r.saved = append(r.saved, s.clone())
	}
	return nil
}

func (r *memoryRepo) savedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.saved)
}

func (r *memoryRepo) savedByID(id string) *Schedule {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.saved {
		if s.ID == id {
			return s.clone()
		}
	}
	return nil
}

// stubSpawner records spawned tasks and reports scripted task states.
type stubSpawner struct {
	mu      sync.Mutex
	queries []string
	counter int
	nextErr error
	running map[string]bool // ids still non-terminal
	notify  chan string
}

func newStubSpawner() *stubSpawner {
	return &stubSpawner{
		running: make(map[string]bool),
		notify:  make(chan string, 32),
	}
}

func (s *stubSpawner) Spawn(description, query string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.nextErr != nil {
		err := s.nextErr
		s.nextErr = nil
		return "", err
	}
	s.counter++
	id := fmt.Sprintf("task-%d", s.counter)
	s.queries = append(s.queries, query)
	select {
	case s.notify <- id:
	default:
	}
	return id, nil
}

func (s *stubSpawner) Status(id string) (task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running[id] {
		return task.Task{ID: id, Status: task.StatusRunning}, nil
	}
	return task.Task{ID: id, Status: task.StatusCompleted}, nil
}

func (s *stubSpawner) setRunning(id string, running bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running[id] = running
}

func (s *stubSpawner) spawnCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counter
}
