package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	reportStatus   string
	reportFindings []string
	historyLimit   int
)

var conversationCmd = &cobra.Command{
	Use:     "conversation",
	Aliases: []string{"conv"},
	Short:   "Manage named conversations",
}

var conversationListCmd = &cobra.Command{
	Use:   "list",
	Short: "List conversations",
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := openWorkspace()
		if err != nil {
			return err
		}
		defer ws.Close()

		for _, s := range ws.Conversations.List() {
			marker := " "
			if s.IsActive {
				marker = "*"
			}
			fmt.Printf("%s %-20s %3d messages\n", marker, s.Name, s.MessageCount)
		}
		return nil
	},
}

var conversationCreateCmd = &cobra.Command{
	Use:   "create [name]",
	Short: "Create a named conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := openWorkspace()
		if err != nil {
			return err
		}
		defer ws.Close()
		if _, err := ws.Conversations.Create(args[0]); err != nil {
			return err
		}
		fmt.Printf("created conversation %q\n", args[0])
		return nil
	},
}

var conversationSwitchCmd = &cobra.Command{
	Use:   "switch [name]",
	Short: "Switch the active conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := openWorkspace()
		if err != nil {
			return err
		}
		defer ws.Close()
		if _, err := ws.Conversations.SwitchTo(args[0]); err != nil {
			return err
		}
		fmt.Printf("switched to %q\n", args[0])
		return nil
	},
}

var conversationDeleteCmd = &cobra.Command{
	Use:   "delete [name]",
	Short: "Delete a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := openWorkspace()
		if err != nil {
			return err
		}
		defer ws.Close()
		if err := ws.Conversations.Delete(args[0]); err != nil {
			return err
		}
		fmt.Printf("deleted %q\n", args[0])
		return nil
	},
}

var conversationHistoryCmd = &cobra.Command{
	Use:   "history [name]",
	Short: "Show recent messages in a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := openWorkspace()
		if err != nil {
			return err
		}
		defer ws.Close()
		msgs, err := ws.Conversations.History(args[0], historyLimit)
		if err != nil {
			return err
		}
		for _, m := range msgs {
			fmt.Printf("[%s] %s: %s\n", m.Timestamp.Format("15:04:05"), m.Role, m.Content)
		}
		return nil
	},
}

var conversationReportCmd = &cobra.Command{
	Use:   "report [from-name] [summary]",
	Short: "Report a conversation's outcome to the main chat",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := openWorkspace()
		if err != nil {
			return err
		}
		defer ws.Close()
		if err := ws.Conversations.ReportToParent(args[0], args[1], reportStatus, reportFindings); err != nil {
			return err
		}
		fmt.Println("reported")
		return nil
	},
}

func init() {
	conversationHistoryCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum messages to show")
	conversationReportCmd.Flags().StringVar(&reportStatus, "status", "completed", "outcome status")
	conversationReportCmd.Flags().StringSliceVar(&reportFindings, "finding", nil, "key finding (repeatable)")

	conversationCmd.AddCommand(conversationListCmd)
	conversationCmd.AddCommand(conversationCreateCmd)
	conversationCmd.AddCommand(conversationSwitchCmd)
	conversationCmd.AddCommand(conversationDeleteCmd)
	conversationCmd.AddCommand(conversationHistoryCmd)
	conversationCmd.AddCommand(conversationReportCmd)
}
