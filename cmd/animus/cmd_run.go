package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var runPlay bool

// runStop is nil in production; tests close it to stop run without
// delivering a signal.
var runStop chan struct{}

// runCmd keeps the workspace open in the foreground. Schedule timers
// and the heartbeat loop only tick while a process holds the workspace
// open; the one-shot command families mutate durable state that this
// process picks up on its next start.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the workspace in the foreground",
	Long: `Opens the workspace and keeps it open until interrupted, so that
recurring schedules fire and the autonomous loop can tick. Loop state
lives in this process; start the heartbeat with --play or control it
from the process's own loop commands. Durable changes made by other
invocations (schedules, conversations) take effect the next time run
starts.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := openWorkspace()
		if err != nil {
			return err
		}
		defer ws.Close()

		if runPlay {
			printLoopSnapshot(ws.Loop.Play())
		}

		fmt.Println("animus running; press Ctrl-C to stop")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-sigCh:
		case <-runStop:
		}

		fmt.Println("shutting down")
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVar(&runPlay, "play", false, "start the autonomous loop immediately")
}
