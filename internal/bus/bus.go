// Package bus implements the in-process event bus for animus.
//
// Every component announces lifecycle transitions here instead of calling
// its listeners directly. Publish never blocks: if a subscriber's buffer
// is full the event is dropped for that subscriber.
package bus

import (
	"sync"
	"time"

	"animus/internal/logging"
)

// EventType represents the type of event being published.
type EventType string

const (
	// Task lifecycle events carry the task id and new status.
	EventTaskQueued    EventType = "task.queued"
	EventTaskRunning   EventType = "task.running"
	EventTaskCompleted EventType = "task.completed"
	EventTaskFailed    EventType = "task.failed"
	EventTaskCancelled EventType = "task.cancelled"

	// Schedule tick outcomes.
	EventScheduleFired   EventType = "schedule.fired"
	EventScheduleSkipped EventType = "schedule.skipped"
	EventSchedulePaused  EventType = "schedule.paused"

	// Loop controller signals.
	EventLoopState    EventType = "loop.state"
	EventLoopQuestion EventType = "loop.question"
	EventLoopAnswer   EventType = "loop.answer"

	// EventForegroundBusy is raised by the UI layer while a direct user
	// exchange is in flight. Payload key "busy" is a bool.
	EventForegroundBusy EventType = "foreground.busy"
)

// Event represents a single bus event.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Data      map[string]interface{}
}

// Subscriber is a function that receives events.
type Subscriber func(Event)

// Bus is a non-blocking publish/subscribe event bus.
// Events are delivered asynchronously via buffered channels, one
// delivery goroutine per subscriber.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]chan Event
	bufferSize  int
	closed      bool

	// Recent events, newest last. Bounded ring for inspection.
	recent    []Event
	recentCap int

	dropped int64
}

// New creates a new event bus with the specified buffer size per subscriber.
func New(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &Bus{
		subscribers: make(map[EventType][]chan Event),
		bufferSize:  bufferSize,
		recentCap:   256,
	}
}

// Subscribe registers a subscriber for the given event types.
// The subscriber function is called asynchronously from a dedicated
// goroutine. Returns an unsubscribe function.
func (b *Bus) Subscribe(fn Subscriber, types ...EventType) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return func() {}
	}

	ch := make(chan Event, b.bufferSize)
	for _, t := range types {
		b.subscribers[t] = append(b.subscribers[t], ch)
	}

	go func() {
		for event := range ch {
			deliver(fn, event)
		}
	}()

	subscribed := append([]EventType(nil), types...)
	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for _, t := range subscribed {
				subs := b.subscribers[t]
				for i, subCh := range subs {
					if subCh == ch {
						b.subscribers[t] = append(subs[:i], subs[i+1:]...)
						break
					}
				}
			}
			close(ch)
		})
	}
}

// deliver isolates subscriber panics so one bad listener cannot take
// down the bus goroutine.
func deliver(fn Subscriber, event Event) {
	defer func() {
		if r := recover(); r != nil {
			logging.Get(logging.CategoryBus).Error("subscriber panic on %s: %v", event.Type, r)
		}
	}()
	fn(event)
}

// Publish sends an event to all subscribers of the given type.
// Non-blocking: if a subscriber's channel is full, the event is dropped
// for that subscriber.
func (b *Bus) Publish(eventType EventType, data map[string]interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	event := Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}

	b.recent = append(b.recent, event)
	if len(b.recent) > b.recentCap {
		b.recent = b.recent[len(b.recent)-b.recentCap:]
	}

	for _, ch := range b.subscribers[eventType] {
		select {
		case ch <- event:
		default:
			b.dropped++
			logging.BusDebug("dropped %s event for slow subscriber", eventType)
		}
	}
}

// Recent returns up to limit of the most recently published events,
// newest last. limit <= 0 returns everything retained.
func (b *Bus) Recent(limit int) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := len(b.recent)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Event, n)
	copy(out, b.recent[len(b.recent)-n:])
	return out
}

// Dropped returns the number of events dropped due to slow subscribers.
func (b *Bus) Dropped() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dropped
}

// Close shuts down the bus. All subscriber channels are closed and
// further publishes become no-ops.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	seen := make(map[chan Event]bool)
	for _, subs := range b.subscribers {
		for _, ch := range subs {
			if !seen[ch] {
				seen[ch] = true
				close(ch)
			}
		}
	}
	b.subscribers = make(map[EventType][]chan Event)
}
