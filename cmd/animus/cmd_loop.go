package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"animus/internal/loop"
)

var loopIntervalMs int64

var loopCmd = &cobra.Command{
	Use:   "loop",
	Short: "Control the autonomous loop",
}

var loopPlayCmd = &cobra.Command{
	Use:   "play",
	Short: "Start or resume the autonomous loop",
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := openWorkspace()
		if err != nil {
			return err
		}
		defer ws.Close()
		printLoopSnapshot(ws.Loop.Play())
		return nil
	},
}

var loopPauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Pause the autonomous loop",
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := openWorkspace()
		if err != nil {
			return err
		}
		defer ws.Close()
		printLoopSnapshot(ws.Loop.Pause())
		return nil
	},
}

var loopStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the autonomous loop",
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := openWorkspace()
		if err != nil {
			return err
		}
		defer ws.Close()
		printLoopSnapshot(ws.Loop.Stop())
		return nil
	},
}

var loopSetIntervalCmd = &cobra.Command{
	Use:   "set-interval",
	Short: "Change the tick interval",
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := openWorkspace()
		if err != nil {
			return err
		}
		defer ws.Close()
		if err := ws.Loop.SetInterval(time.Duration(loopIntervalMs) * time.Millisecond); err != nil {
			return err
		}
		printLoopSnapshot(ws.Loop.Snapshot())
		return nil
	},
}

var loopAnswerCmd = &cobra.Command{
	Use:   "answer [question-id] [answer]",
	Short: "Answer a pending blocking question",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := openWorkspace()
		if err != nil {
			return err
		}
		defer ws.Close()
		if err := ws.Loop.AnswerQuestion(args[0], args[1]); err != nil {
			return err
		}
		printLoopSnapshot(ws.Loop.Snapshot())
		return nil
	},
}

var loopStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show loop state and pending questions",
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := openWorkspace()
		if err != nil {
			return err
		}
		defer ws.Close()
		printLoopSnapshot(ws.Loop.Snapshot())
		return nil
	},
}

func printLoopSnapshot(snap loop.Snapshot) {
	fmt.Printf("state=%s interval=%v invocations=%d", snap.State, snap.Interval, snap.InvocationCount)
	if snap.ExplicitlyPaused {
		fmt.Print(" explicitly-paused")
	}
	fmt.Println()
	for _, q := range snap.PendingQuestions {
		fmt.Printf("  question %s (task %s): %s\n", q.ID, q.RaisedByTaskID, q.Question)
	}
}

func init() {
	loopSetIntervalCmd.Flags().Int64Var(&loopIntervalMs, "interval-ms", 0, "tick interval in milliseconds")
	_ = loopSetIntervalCmd.MarkFlagRequired("interval-ms")

	loopCmd.AddCommand(loopPlayCmd)
	loopCmd.AddCommand(loopPauseCmd)
	loopCmd.AddCommand(loopStopCmd)
	loopCmd.AddCommand(loopSetIntervalCmd)
	loopCmd.AddCommand(loopAnswerCmd)
	loopCmd.AddCommand(loopStatusCmd)
}
