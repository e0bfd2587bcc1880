// Package config holds the workspace configuration for animus.
// Configuration lives at .animus/config.yaml inside the workspace.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all animus configuration.
type Config struct {
	// Name identifies the workspace.
	Name string `yaml:"name"`

	Tasks   TaskConfig    `yaml:"tasks"`
	Loop    LoopConfig    `yaml:"loop"`
	Storage StorageConfig `yaml:"storage"`
	Logging LoggingConfig `yaml:"logging"`
}

// TaskConfig configures the task manager.
type TaskConfig struct {
	// MaxConcurrent is the number of execution slots.
	MaxConcurrent int `yaml:"max_concurrent"`

	// WaitTimeout is the default Wait timeout.
	WaitTimeout time.Duration `yaml:"wait_timeout"`
}

// LoopConfig configures the autonomous loop.
type LoopConfig struct {
	// Interval between loop ticks.
	Interval time.Duration `yaml:"interval"`

	// HistoryLimit bounds conversation history per briefing.
	HistoryLimit int `yaml:"history_limit"`

	// Topics are recalled from memory providers each tick.
	Topics []string `yaml:"topics"`
}

// StorageConfig configures the durable store.
type StorageConfig struct {
	// DatabasePath is relative to the workspace unless absolute.
	DatabasePath string `yaml:"database_path"`
}

// LoggingConfig configures categorized debug logging.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Level      string          `yaml:"level"`
	Categories map[string]bool `yaml:"categories"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		Name: "animus",
		Tasks: TaskConfig{
			MaxConcurrent: 3,
			WaitTimeout:   5 * time.Minute,
		},
		Loop: LoopConfig{
			Interval:     5 * time.Minute,
			HistoryLimit: 20,
		},
		Storage: StorageConfig{
			DatabasePath: filepath.Join(".animus", "animus.db"),
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Path returns the config file path for a workspace directory.
func Path(workspace string) string {
	return filepath.Join(workspace, ".animus", "config.yaml")
}

// Load reads the workspace config, falling back to defaults for a
// missing file and backfilling zero values.
func Load(workspace string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}

	cfg.backfill()
	return cfg, nil
}

// Save writes the config to the workspace.
func Save(workspace string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	path := Path(workspace)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// backfill applies defaults for zero values.
func (c *Config) backfill() {
	def := Default()
	if c.Tasks.MaxConcurrent <= 0 {
		c.Tasks.MaxConcurrent = def.Tasks.MaxConcurrent
	}
	if c.Tasks.WaitTimeout <= 0 {
		c.Tasks.WaitTimeout = def.Tasks.WaitTimeout
	}
	if c.Loop.Interval <= 0 {
		c.Loop.Interval = def.Loop.Interval
	}
	if c.Loop.HistoryLimit <= 0 {
		c.Loop.HistoryLimit = def.Loop.HistoryLimit
	}
	if c.Storage.DatabasePath == "" {
		c.Storage.DatabasePath = def.Storage.DatabasePath
	}
	if c.Logging.Level == "" {
		c.Logging.Level = def.Logging.Level
	}
}
