package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"animus/internal/task"
)

var (
	taskDescription string
	taskWait        bool
	waitTimeoutMs   int64
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage background tasks",
}

var taskSpawnCmd = &cobra.Command{
	Use:   "spawn [query]",
	Short: "Spawn a one-shot background task",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := openWorkspace()
		if err != nil {
			return err
		}
		defer ws.Close()

		query := strings.Join(args, " ")
		desc := taskDescription
		if desc == "" {
			desc = query
		}

		id, err := ws.Tasks.Spawn(desc, query)
		if err != nil {
			return err
		}
		fmt.Printf("spawned task %s\n", id)

		if taskWait {
			result, err := ws.Tasks.Wait(id, time.Duration(waitTimeoutMs)*time.Millisecond)
			if err != nil {
				return err
			}
			fmt.Println(result)
		}
		return nil
	},
}

var taskStatusCmd = &cobra.Command{
	Use:   "status [task-id]",
	Short: "Show one task's status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := openWorkspace()
		if err != nil {
			return err
		}
		defer ws.Close()

		t, err := ws.Tasks.Status(args[0])
		if err != nil {
			return err
		}
		printTask(t)
		return nil
	},
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := openWorkspace()
		if err != nil {
			return err
		}
		defer ws.Close()

		tasks := ws.Tasks.List(task.Filter{})
		if len(tasks) == 0 {
			fmt.Println("no tasks")
			return nil
		}
		for _, t := range tasks {
			fmt.Printf("%s  %-9s  %3d%%  %s\n", t.ID, t.Status, t.Progress, t.Description)
		}
		return nil
	},
}

var taskCancelCmd = &cobra.Command{
	Use:   "cancel [task-id]",
	Short: "Request cancellation of a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := openWorkspace()
		if err != nil {
			return err
		}
		defer ws.Close()

		if err := ws.Tasks.Cancel(args[0]); err != nil {
			return err
		}
		fmt.Println("cancellation requested")
		return nil
	},
}

var taskWaitCmd = &cobra.Command{
	Use:   "wait [task-id]",
	Short: "Block until a task reaches a terminal state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := openWorkspace()
		if err != nil {
			return err
		}
		defer ws.Close()

		result, err := ws.Tasks.Wait(args[0], time.Duration(waitTimeoutMs)*time.Millisecond)
		if err != nil {
			return err
		}
		fmt.Println(result)
		return nil
	},
}

var taskOutputCmd = &cobra.Command{
	Use:   "output [task-id]",
	Short: "Show a task's output log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := openWorkspace()
		if err != nil {
			return err
		}
		defer ws.Close()

		lines, err := ws.Tasks.Output(args[0])
		if err != nil {
			return err
		}
		for _, line := range lines {
			fmt.Println(line)
		}
		return nil
	},
}

func printTask(t task.Task) {
	fmt.Printf("id:          %s\n", t.ID)
	fmt.Printf("description: %s\n", t.Description)
	fmt.Printf("status:      %s\n", t.Status)
	fmt.Printf("progress:    %d%%\n", t.Progress)
	if t.Result != "" {
		fmt.Printf("result:      %s\n", t.Result)
	}
	if t.Error != "" {
		fmt.Printf("error:       %s\n", t.Error)
	}
	fmt.Printf("created:     %s\n", t.CreatedAt.Format(time.RFC3339))
	if t.CompletedAt != nil {
		fmt.Printf("completed:   %s\n", t.CompletedAt.Format(time.RFC3339))
	}
}

func init() {
	taskSpawnCmd.Flags().StringVarP(&taskDescription, "description", "d", "", "task description")
	taskSpawnCmd.Flags().BoolVar(&taskWait, "wait", false, "wait for the result")
	taskCmd.PersistentFlags().Int64Var(&waitTimeoutMs, "timeout-ms", 300000, "wait timeout in milliseconds")

	taskCmd.AddCommand(taskSpawnCmd)
	taskCmd.AddCommand(taskStatusCmd)
	taskCmd.AddCommand(taskListCmd)
	taskCmd.AddCommand(taskCancelCmd)
	taskCmd.AddCommand(taskWaitCmd)
	taskCmd.AddCommand(taskOutputCmd)
}
