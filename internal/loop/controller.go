package loop

import (
	"context"
	"fmt"
	"sync"
	"time"

	"animus/internal/bus"
	"animus/internal/conversation"
	"animus/internal/logging"
	"animus/internal/schedule"
	"animus/internal/task"
	"animus/internal/types"
)

// Spawner is the controller's view of the task manager.
type Spawner interface {
	Spawn(description, query string) (string, error)
	List(f task.Filter) []task.Task
}

// ScheduleLister is the controller's view of the scheduler.
type ScheduleLister interface {
	List(f schedule.Filter) []*schedule.Schedule
}

// HistoryProvider is the controller's view of the conversation registry.
type HistoryProvider interface {
	History(name string, limit int) ([]conversation.Message, error)
	Append(name string, msg conversation.Message) error
}

// Config configures the loop controller.
type Config struct {
	// Interval between ticks. Default: 5 minutes.
	Interval time.Duration

	// HistoryLimit bounds how much default-conversation history goes
	// into each briefing. Default: 20.
	HistoryLimit int

	// RecentWindow bounds how far back completed tasks appear in
	// briefings. Default: 10 minutes.
	RecentWindow time.Duration

	// Topics are consulted on the memory providers each tick.
	Topics []string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:     5 * time.Minute,
		HistoryLimit: 20,
		RecentWindow: 10 * time.Minute,
	}
}

// Controller is the four-state autonomous loop. There is one per
// workspace, constructed at open and stopped at close.
type Controller struct {
	mu sync.Mutex

	cfg Config

	state            State
	interval         time.Duration
	invocationCount  int
	pending          []*BlockingQuestion
	explicitlyPaused bool
	foregroundBusy   bool

	tasks     Spawner
	schedules ScheduleLister
	convos    HistoryProvider
	providers []types.MemoryProvider

	bus         *bus.Bus
	unsubscribe func()

	// wake nudges the run goroutine after a state or interval change.
	wake   chan struct{}
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewController wires the controller to its collaborators. Memory
// providers are optional read-only sources folded into each briefing.
func NewController(tasks Spawner, schedules ScheduleLister, convos HistoryProvider, providers []types.MemoryProvider, b *bus.Bus, cfg Config) *Controller {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 20
	}
	if cfg.RecentWindow <= 0 {
		cfg.RecentWindow = 10 * time.Minute
	}

	c := &Controller{
		cfg:       cfg,
		state:     StateStopped,
		interval:  cfg.Interval,
		tasks:     tasks,
		schedules: schedules,
		convos:    convos,
		providers: providers,
		bus:       b,
		wake:      make(chan struct{}, 1),
	}

	if b != nil {
		c.unsubscribe = b.Subscribe(func(e bus.Event) {
			busy, _ := e.Data["busy"].(bool)
			c.mu.Lock()
			c.foregroundBusy = busy
			c.mu.Unlock()
		}, bus.EventForegroundBusy)
	}

	return c
}

// Play starts or resumes the loop. Valid from stopped and paused; a
// duplicate Play while playing is a no-op. Entering playing from
// stopped resets the invocation count.
func (c *Controller) Play() Snapshot {
	c.mu.Lock()

	switch c.state {
	case StateStopped:
		c.invocationCount = 0
		c.explicitlyPaused = false
		c.state = StatePlaying
		c.stopCh = make(chan struct{})
		c.doneCh = make(chan struct{})
		go c.run(c.stopCh, c.doneCh)
		logging.Loop("Loop playing (interval %v)", c.interval)
	case StatePaused:
		c.explicitlyPaused = false
		c.state = StatePlaying
		c.signalWakeLocked()
		logging.Loop("Loop resumed")
	case StatePlaying:
		// Idempotent under duplicate client requests.
	}

	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.publishState(snap.State)
	return snap
}

// Pause suspends the timer. Valid only while playing; anything else is
// a no-op. An explicit pause takes precedence over question auto-resume.
func (c *Controller) Pause() Snapshot {
	c.mu.Lock()

	switch c.state {
	case StatePlaying:
		c.state = StatePaused
		c.explicitlyPaused = true
		c.signalWakeLocked()
		logging.Loop("Loop paused (explicit)")
	case StatePaused:
		// Already paused for a question: record the explicit intent so
		// answering the question does not auto-resume.
		c.explicitlyPaused = true
	}

	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.publishState(snap.State)
	return snap
}

// Stop clears the timer and resets the invocation count. Valid from
// playing and paused; stopping a stopped loop is a no-op.
func (c *Controller) Stop() Snapshot {
	c.mu.Lock()

	var done chan struct{}
	if c.state == StatePlaying || c.state == StatePaused {
		c.state = StateStopped
		c.invocationCount = 0
		c.explicitlyPaused = false
		close(c.stopCh)
		done = c.doneCh
		logging.Loop("Loop stopped")
	}

	snap := c.snapshotLocked()
	c.mu.Unlock()

	if done != nil {
		<-done
	}

	c.publishState(snap.State)
	return snap
}

// SetInterval changes the tick interval. Valid in any state; takes
// effect on the next scheduled fire.
func (c *Controller) SetInterval(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("%w: interval must be positive", ErrInvalidArgument)
	}

	c.mu.Lock()
	c.interval = d
	c.signalWakeLocked()
	c.mu.Unlock()

	logging.Loop("Loop interval set to %v", d)
	return nil
}

// Close releases the controller's bus subscription and stops the loop.
func (c *Controller) Close() {
	c.Stop()
	if c.unsubscribe != nil {
		c.unsubscribe()
	}
}

// Snapshot returns the externally visible loop state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// snapshotLocked builds a Snapshot. Caller holds c.mu.
func (c *Controller) snapshotLocked() Snapshot {
	pending := make([]BlockingQuestion, 0, len(c.pending))
	for _, q := range c.pending {
		pending = append(pending, *q)
	}
	return Snapshot{
		State:            c.state,
		Interval:         c.interval,
		InvocationCount:  c.invocationCount,
		ExplicitlyPaused: c.explicitlyPaused,
		PendingQuestions: pending,
	}
}

// signalWakeLocked nudges the run goroutine without blocking.
// Caller holds c.mu.
func (c *Controller) signalWakeLocked() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// run is the single loop goroutine. One goroutine means ticks are
// strictly sequential: no overlapping briefing assembly.
func (c *Controller) run(stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	for {
		c.mu.Lock()
		playing := c.state == StatePlaying
		interval := c.interval
		c.mu.Unlock()

		if !playing {
			select {
			case <-stopCh:
				return
			case <-c.wake:
				continue
			}
		}

		timer := time.NewTimer(interval)
		select {
		case <-stopCh:
			timer.Stop()
			return
		case <-c.wake:
			timer.Stop()
			continue
		case <-timer.C:
			c.tick()
		}
	}
}

// tick increments the counter, assembles a briefing, and spawns exactly
// one task to act on it.
func (c *Controller) tick() {
	c.mu.Lock()
	if c.state != StatePlaying {
		c.mu.Unlock()
		return
	}
	c.invocationCount++
	count := c.invocationCount
	busy := c.foregroundBusy
	c.mu.Unlock()

	timer := logging.StartTimer(logging.CategoryLoop, fmt.Sprintf("tick %d", count))
	defer timer.StopWithThreshold(5 * time.Second)

	briefing := c.assembleBriefing(count, busy)

	taskID, err := c.tasks.Spawn(fmt.Sprintf("loop tick %d", count), briefing.Render())
	if err != nil {
		logging.Get(logging.CategoryLoop).Error("Tick %d spawn failed: %v", count, err)
		return
	}
	logging.LoopDebug("Tick %d spawned task %s (observe_only=%v)", count, taskID, busy)
}

// RaiseQuestion records a blocking question from a running task, pauses
// the loop if playing, and surfaces the question to the user via the
// default conversation.
func (c *Controller) RaiseQuestion(taskID, question string) *BlockingQuestion {
	q := newQuestion(taskID, question)

	c.mu.Lock()
	c.pending = append(c.pending, q)
	autoPaused := false
	if c.state == StatePlaying {
		// Question pause, not explicit pause: auto-resume may undo it.
		c.state = StatePaused
		autoPaused = true
		c.signalWakeLocked()
	}
	c.mu.Unlock()

	if autoPaused {
		c.publishState(StatePaused)
	}
	if c.bus != nil {
		c.bus.Publish(bus.EventLoopQuestion, map[string]interface{}{
			"question_id": q.ID,
			"task_id":     taskID,
		})
	}
	if c.convos != nil {
		msg := conversation.NewMessage(conversation.RoleSystem,
			fmt.Sprintf("[question %s from task %s] %s", q.ID, taskID, question))
		if err := c.convos.Append(conversation.DefaultName, msg); err != nil {
			logging.Get(logging.CategoryLoop).Warn("Could not surface question %s: %v", q.ID, err)
		}
	}

	logging.Loop("Question %s raised by task %s, loop paused", q.ID, taskID)
	return q
}

// AnswerQuestion resolves a pending question with the user's answer.
// The answer is delivered back into the originating task's context and
// the loop auto-resumes, unless an explicit pause was issued in the
// interim, which takes precedence.
func (c *Controller) AnswerQuestion(id, answer string) error {
	c.mu.Lock()

	var q *BlockingQuestion
	for i, pq := range c.pending {
		if pq.ID == id {
			q = pq
			c.pending = append(c.pending[:i], c.pending[i+1:]...)
			break
		}
	}
	if q == nil {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrQuestionNotFound, id)
	}

	q.Resolved = true
	q.Answer = answer

	resumed := false
	if c.state == StatePaused && !c.explicitlyPaused {
		c.state = StatePlaying
		resumed = true
		c.signalWakeLocked()
	}
	c.mu.Unlock()

	// Buffered channel: delivery never blocks, and exactly one answer
	// can ever be delivered per question.
	q.answerCh <- answer

	if c.bus != nil {
		c.bus.Publish(bus.EventLoopAnswer, map[string]interface{}{
			"question_id": id,
			"task_id":     q.RaisedByTaskID,
		})
	}
	if resumed {
		c.publishState(StatePlaying)
		logging.Loop("Question %s answered, loop resumed", id)
	} else {
		logging.Loop("Question %s answered, loop stays %s", id, c.Snapshot().State)
	}
	return nil
}

// AskUser raises a blocking question and waits for the answer. This is
// the form units of work use; the wait is a suspension point, so
// cancellation is honored.
func (c *Controller) AskUser(ctx context.Context, taskID, question string) (string, error) {
	q := c.RaiseQuestion(taskID, question)

	select {
	case answer := <-q.answerCh:
		return answer, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *Controller) publishState(s State) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(bus.EventLoopState, map[string]interface{}{
		"state": s.String(),
	})
}
