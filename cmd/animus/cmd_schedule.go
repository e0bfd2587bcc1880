package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"animus/internal/schedule"
)

var (
	scheduleDescription string
	scheduleIntervalMs  int64
	scheduleMaxRuns     int
	scheduleSkip        bool
	scheduleTags        []string
	scheduleStatus      string
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Manage recurring schedules",
}

var scheduleCreateCmd = &cobra.Command{
	Use:   "create [name] [query]",
	Short: "Create a durable recurring schedule",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := openWorkspace()
		if err != nil {
			return err
		}
		defer ws.Close()

		skip := scheduleSkip
		sched, err := ws.Scheduler.Create(schedule.Spec{
			Name:          args[0],
			Description:   scheduleDescription,
			Query:         args[1],
			Interval:      time.Duration(scheduleIntervalMs) * time.Millisecond,
			MaxRuns:       scheduleMaxRuns,
			SkipIfRunning: &skip,
			Tags:          scheduleTags,
		})
		if err != nil {
			return err
		}
		fmt.Printf("created schedule %s (%s)\n", sched.Name, sched.ID)
		return nil
	},
}

var scheduleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List schedules",
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := openWorkspace()
		if err != nil {
			return err
		}
		defer ws.Close()

		scheds := ws.Scheduler.List(schedule.Filter{
			Status: schedule.Status(scheduleStatus),
			Tags:   scheduleTags,
		})
		if len(scheds) == 0 {
			fmt.Println("no schedules")
			return nil
		}
		for _, s := range scheds {
			fmt.Printf("%s  %-6s  every %-8v  runs=%d", s.ID, s.Status, s.Interval, s.RunCount)
			if s.MaxRuns > 0 {
				fmt.Printf("/%d", s.MaxRuns)
			}
			fmt.Printf("  %s\n", s.Name)
		}
		return nil
	},
}

func scheduleActionCmd(use, short string, action func(*cobra.Command, string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " [schedule-id]",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return action(cmd, args[0])
		},
	}
}

func init() {
	scheduleCreateCmd.Flags().StringVarP(&scheduleDescription, "description", "d", "", "schedule description")
	scheduleCreateCmd.Flags().Int64Var(&scheduleIntervalMs, "interval-ms", 0, "interval between ticks in milliseconds")
	scheduleCreateCmd.Flags().IntVar(&scheduleMaxRuns, "max-runs", 0, "pause after this many runs (0 = unlimited)")
	scheduleCreateCmd.Flags().BoolVar(&scheduleSkip, "skip-if-running", true, "skip a tick while the previous task still runs")
	scheduleCreateCmd.Flags().StringSliceVar(&scheduleTags, "tags", nil, "schedule tags")
	_ = scheduleCreateCmd.MarkFlagRequired("interval-ms")

	scheduleListCmd.Flags().StringVar(&scheduleStatus, "status", "", "filter by status (active|paused)")
	scheduleListCmd.Flags().StringSliceVar(&scheduleTags, "tags", nil, "filter by tags")

	scheduleCmd.AddCommand(scheduleCreateCmd)
	scheduleCmd.AddCommand(scheduleListCmd)
	scheduleCmd.AddCommand(scheduleActionCmd("pause", "Pause a schedule", func(cmd *cobra.Command, id string) error {
		ws, err := openWorkspace()
		if err != nil {
			return err
		}
		defer ws.Close()
		if err := ws.Scheduler.Pause(id); err != nil {
			return err
		}
		fmt.Println("paused")
		return nil
	}))
	scheduleCmd.AddCommand(scheduleActionCmd("resume", "Resume a paused schedule", func(cmd *cobra.Command, id string) error {
		ws, err := openWorkspace()
		if err != nil {
			return err
		}
		defer ws.Close()
		if err := ws.Scheduler.Resume(id); err != nil {
			return err
		}
		fmt.Println("resumed")
		return nil
	}))
	scheduleCmd.AddCommand(scheduleActionCmd("delete", "Delete a schedule", func(cmd *cobra.Command, id string) error {
		ws, err := openWorkspace()
		if err != nil {
			return err
		}
		defer ws.Close()
		if err := ws.Scheduler.Delete(id); err != nil {
			return err
		}
		fmt.Println("deleted")
		return nil
	}))
	scheduleCmd.AddCommand(scheduleActionCmd("trigger", "Fire one tick immediately", func(cmd *cobra.Command, id string) error {
		ws, err := openWorkspace()
		if err != nil {
			return err
		}
		defer ws.Close()
		if err := ws.Scheduler.TriggerNow(id); err != nil {
			return err
		}
		fmt.Println("triggered")
		return nil
	}))
}
