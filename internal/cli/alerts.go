package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newAlertsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "List and transition alerts",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list <tenant>",
		Short: "List open and acknowledged alerts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			alerts, err := apiClient.Alerts().ListUnresolved(context.Background(), args[0])
			if err != nil {
				return fmt.Errorf("failed to list alerts: %w", err)
			}
			return render(alerts, func() *Table {
				t := NewTable("ID", "SEVERITY", "TYPE", "STATUS", "LEVEL", "CREATED", "TITLE")
				for _, a := range alerts {
					t.AddRow(a.ID, formatSeverity(string(a.Severity)), a.Type, formatStatus(a.Status),
						fmt.Sprint(a.EscalationLevel), formatTime(&a.CreatedAt), truncate(a.Title, 50))
				}
				return t
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "ack <tenant> <id>",
		Short: "Acknowledge an alert",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := apiClient.Alerts().Acknowledge(context.Background(), args[0], args[1]); err != nil {
				return fmt.Errorf("failed to acknowledge alert: %w", err)
			}
			fmt.Printf("Alert %s acknowledged\n", args[1])
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "resolve <tenant> <id>",
		Short: "Resolve an alert",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := apiClient.Alerts().Resolve(context.Background(), args[0], args[1]); err != nil {
				return fmt.Errorf("failed to resolve alert: %w", err)
			}
			fmt.Printf("Alert %s resolved\n", args[1])
			return nil
		},
	})

	return cmd
}
