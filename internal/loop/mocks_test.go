package loop

import (
	"fmt"
	"sync"

	"animus/internal/conversation"
	"animus/internal/schedule"
	"animus/internal/task"
)

// stubTasks records spawned loop tasks.
type stubTasks struct {
	mu      sync.Mutex
	counter int
	descs   []string
	queries []string
	listed  []task.Task
	notify  chan string
}

func newStubTasks() *stubTasks {
	return &stubTasks{notify: make(chan string, 32)}
}

func (s *stubTasks) Spawn(description, query string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counter++
	id := fmt.Sprintf("task-%d", s.counter)
	s.descs = append(s.descs, description)
	s.queries = append(s.queries, query)
	select {
	case s.notify <- id:
	default:
	}
	return id, nil
}

func (s *stubTasks) List(f task.Filter) []task.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]task.Task(nil), s.listed...)
}

func (s *stubTasks) spawnCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counter
}

func (s *stubTasks) lastSpawn() (string, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.descs) == 0 {
		return "", ""
	}
	return s.descs[len(s.descs)-1], s.queries[len(s.queries)-1]
}

// stubSchedules returns a fixed schedule list.
type stubSchedules struct {
	schedules []*schedule.Schedule
}

func (s *stubSchedules) List(f schedule.Filter) []*schedule.Schedule {
	return s.schedules
}

// stubConvos provides scripted history and records appends.
type stubConvos struct {
	mu       sync.Mutex
	history  []conversation.Message
	appended []conversation.Message
}

func (s *stubConvos) History(name string, limit int) ([]conversation.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]conversation.Message(nil), s.history...), nil
}

func (s *stubConvos) Append(name string, msg conversation.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appended = append(s.appended, msg)
	return nil
}

func (s *stubConvos) appendedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.appended)
}
