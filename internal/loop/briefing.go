package loop

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"animus/internal/conversation"
	"animus/internal/logging"
	"animus/internal/schedule"
	"animus/internal/task"
	"animus/internal/types"
)

// briefingTimeout bounds how long one tick may spend gathering context.
const briefingTimeout = 10 * time.Second

// Briefing is the read-only context snapshot assembled once per tick.
type Briefing struct {
	InvocationCount int
	GeneratedAt     time.Time

	// ObserveOnly instructs the spawned task to restrict itself to
	// read-only observation while a foreground exchange is in flight.
	ObserveOnly bool

	History   []conversation.Message
	Schedules []*schedule.Schedule
	Tasks     []task.Task
	Facts     []types.Fact
}

// assembleBriefing gathers all briefing sections concurrently. Sections
// are best-effort: a failing collaborator degrades the briefing, it
// never fails the tick.
func (c *Controller) assembleBriefing(count int, observeOnly bool) *Briefing {
	ctx, cancel := context.WithTimeout(context.Background(), briefingTimeout)
	defer cancel()

	b := &Briefing{
		InvocationCount: count,
		GeneratedAt:     time.Now().UTC(),
		ObserveOnly:     observeOnly,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if c.convos == nil {
			return nil
		}
		history, err := c.convos.History(conversation.DefaultName, c.cfg.HistoryLimit)
		if err != nil {
			logging.LoopDebug("Briefing history unavailable: %v", err)
			return nil
		}
		b.History = history
		return nil
	})

	g.Go(func() error {
		if c.schedules == nil {
			return nil
		}
		b.Schedules = c.schedules.List(schedule.Filter{})
		return nil
	})

	g.Go(func() error {
		if c.tasks == nil {
			return nil
		}
		// Non-terminal tasks plus anything that finished inside the
		// recent window.
		b.Tasks = c.tasks.List(task.Filter{
			CompletedAfter: time.Now().UTC().Add(-c.cfg.RecentWindow),
		})
		return nil
	})

	g.Go(func() error {
		for _, provider := range c.providers {
			for _, topic := range c.cfg.Topics {
				facts, err := provider.Recall(gctx, topic)
				if err != nil {
					logging.LoopDebug("Recall %q failed: %v", topic, err)
					continue
				}
				b.Facts = append(b.Facts, facts...)
			}
		}
		return nil
	})

	_ = g.Wait()
	return b
}

// Render produces the deterministic text form of the briefing that the
// spawned task receives as its query.
func (b *Briefing) Render() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Autonomous loop briefing #%d (%s)\n", b.InvocationCount, b.GeneratedAt.Format(time.RFC3339))
	if b.ObserveOnly {
		sb.WriteString("MODE: observe only. A foreground exchange is in flight; do not act, only observe and note.\n")
	}

	sb.WriteString("\n## Recent conversation\n")
	if len(b.History) == 0 {
		sb.WriteString("(none)\n")
	}
	for _, m := range b.History {
		fmt.Fprintf(&sb, "%s: %s\n", m.Role, m.Content)
	}

	sb.WriteString("\n## Schedules\n")
	if len(b.Schedules) == 0 {
		sb.WriteString("(none)\n")
	}
	for _, s := range b.Schedules {
		fmt.Fprintf(&sb, "- %s [%s] every %v, runs=%d\n", s.Name, s.Status, s.Interval, s.RunCount)
	}

	sb.WriteString("\n## Tasks\n")
	if len(b.Tasks) == 0 {
		sb.WriteString("(none)\n")
	}
	for _, t := range b.Tasks {
		fmt.Fprintf(&sb, "- %s [%s] %s\n", t.ID, t.Status, t.Description)
	}

	sb.WriteString("\n## Recalled facts\n")
	if len(b.Facts) == 0 {
		sb.WriteString("(none)\n")
	}
	for _, f := range b.Facts {
		fmt.Fprintf(&sb, "- [%s] %s\n", f.Topic, f.Content)
	}

	sb.WriteString("\nDecide whether anything needs doing and act accordingly.\n")
	return sb.String()
}
