// Package main is the entry point for the animus CLI.
// animus is a single-user AI assistant built around a multi-agent task
// orchestration core: background tasks, recurring schedules, an
// autonomous heartbeat loop, and named conversations sharing one
// workspace.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"animus/internal/workspace"
)

var (
	// Global flags
	verbose      bool
	workspaceDir string

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "animus",
	Short: "animus - autonomous assistant orchestration core",
	Long: `animus runs several independent units of autonomous work against one
shared workspace: a foreground conversation, a pool of one-shot
background tasks, persisted recurring schedules, and a heartbeat loop
that acts on its own between user exchanges.

Command families map onto the core components:

  run           keep the workspace open so schedules fire and the loop ticks
  task          spawn, inspect, cancel, and wait on background tasks
  schedule      manage durable recurring triggers
  loop          control the autonomous heartbeat
  conversation  manage named message histories`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config := zap.NewProductionConfig()
		if verbose {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// openWorkspace opens the configured workspace directory.
func openWorkspace() (*workspace.Workspace, error) {
	dir := workspaceDir
	if dir == "" {
		var err error
		dir, err = os.Getwd()
		if err != nil {
			return nil, err
		}
	}
	logger.Debug("opening workspace", zap.String("dir", dir))
	return workspace.Open(dir, workspace.Options{WatchConfig: false})
}

func main() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&workspaceDir, "workspace", "w", "", "workspace directory (default: cwd)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(taskCmd)
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(loopCmd)
	rootCmd.AddCommand(conversationCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
