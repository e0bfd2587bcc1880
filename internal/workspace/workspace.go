// Package workspace wires the animus orchestration core together.
//
// There are no package-level singletons: one Workspace owns one bus,
// one conversation registry, one task manager, one scheduler, and one
// loop controller, all with lifecycle bound to Open/Close.
package workspace

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"animus/internal/bus"
	"animus/internal/config"
	"animus/internal/conversation"
	"animus/internal/logging"
	"animus/internal/loop"
	"animus/internal/model"
	"animus/internal/schedule"
	"animus/internal/store"
	"animus/internal/task"
	"animus/internal/types"
)

// Options customizes collaborator injection at open time.
type Options struct {
	// Model overrides the offline model client.
	Model types.ModelClient

	// Tools overrides the no-op tool executor.
	Tools types.ToolExecutor

	// Memory providers consulted by loop briefings.
	Memory []types.MemoryProvider

	// WatchConfig enables live reload of logging settings.
	WatchConfig bool
}

// Workspace is one open animus workspace.
type Workspace struct {
	Dir    string
	Config config.Config

	Bus           *bus.Bus
	Store         *store.Store
	Conversations *conversation.Registry
	Tasks         *task.Manager
	Scheduler     *schedule.Scheduler
	Loop          *loop.Controller

	watcher *config.Watcher
}

// Open loads config, opens the store, and constructs every component in
// leaf-first dependency order. Persisted schedules are restored before
// Open returns.
func Open(dir string, opts Options) (*Workspace, error) {
	timer := logging.StartTimer(logging.CategoryBoot, "workspace.Open")
	defer timer.Stop()

	if err := logging.Initialize(dir); err != nil {
		return nil, fmt.Errorf("initializing logging: %w", err)
	}
	logging.Boot("Opening workspace at %s", dir)

	cfg, err := config.Load(dir)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	dbPath := cfg.Storage.DatabasePath
	if !filepath.IsAbs(dbPath) {
		dbPath = filepath.Join(dir, dbPath)
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	b := bus.New(0)

	registry, err := conversation.NewRegistry(st.Conversations())
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("loading conversations: %w", err)
	}

	client := opts.Model
	if client == nil {
		client = model.NewOfflineClient()
	}
	var tools types.ToolExecutor = model.NoopToolExecutor{}
	if opts.Tools != nil {
		tools = opts.Tools
	}

	runner := &task.ModelRunner{
		Client:       client,
		Tools:        tools,
		SystemPrompt: fmt.Sprintf("You are a background worker in the %s workspace.", cfg.Name),
	}
	tasks := task.NewManager(runner, b, task.Config{
		MaxConcurrent:      cfg.Tasks.MaxConcurrent,
		DefaultWaitTimeout: cfg.Tasks.WaitTimeout,
	})

	scheduler := schedule.NewScheduler(st.Schedules(), tasks, b)
	if err := scheduler.Restore(); err != nil {
		st.Close()
		return nil, fmt.Errorf("restoring schedules: %w", err)
	}

	controller := loop.NewController(tasks, scheduler, registry, opts.Memory, b, loop.Config{
		Interval:     cfg.Loop.Interval,
		HistoryLimit: cfg.Loop.HistoryLimit,
		Topics:       cfg.Loop.Topics,
	})

	// Units of work escalate blocking questions through the controller.
	runner.Questions = controller

	ws := &Workspace{
		Dir:           dir,
		Config:        cfg,
		Bus:           b,
		Store:         st,
		Conversations: registry,
		Tasks:         tasks,
		Scheduler:     scheduler,
		Loop:          controller,
	}

	if opts.WatchConfig {
		watcher, err := config.NewWatcher(dir, func(config.Config) {
			if err := logging.ReloadConfig(); err != nil {
				logging.Get(logging.CategoryBoot).Warn("Logging reload failed: %v", err)
			}
		})
		if err != nil {
			logging.Get(logging.CategoryBoot).Warn("Config watcher unavailable: %v", err)
		} else if err := watcher.Start(); err != nil {
			logging.Get(logging.CategoryBoot).Warn("Config watcher start failed: %v", err)
		} else {
			ws.watcher = watcher
		}
	}

	logging.Boot("Workspace open (%d conversations, %d schedules)",
		len(registry.List()), len(scheduler.List(schedule.Filter{})))
	return ws, nil
}

// Close tears the workspace down in reverse dependency order.
func (w *Workspace) Close() error {
	logging.Boot("Closing workspace at %s", w.Dir)

	if w.watcher != nil {
		w.watcher.Stop()
	}

	w.Loop.Close()
	w.Scheduler.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := w.Tasks.Shutdown(ctx); err != nil {
		logging.Get(logging.CategoryBoot).Warn("Task shutdown incomplete: %v", err)
	}

	w.Bus.Close()
	err := w.Store.Close()
	logging.CloseAll()
	return err
}
