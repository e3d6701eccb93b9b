package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show server and scheduler status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			if err := apiClient.Health(ctx); err != nil {
				return fmt.Errorf("server is not reachable: %w", err)
			}

			status, err := apiClient.Scheduler().Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get scheduler status: %w", err)
			}

			if getOutputFormat() != "table" {
				return render(status, nil)
			}

			fmt.Fprintln(stdout, "complyflow")
			fmt.Fprintln(stdout, strings.Repeat("=", 40))
			state := "stopped"
			if status.Running {
				state = "running"
			}
			fmt.Fprintf(stdout, "  Scheduler:  %s since %s\n", state, formatTime(status.StartedAt))
			fmt.Fprintf(stdout, "  History:    %d slots\n", status.HistorySize)

			failing := 0
			for _, j := range status.Jobs {
				if j.LastRun != nil && !j.LastRun.Success {
					failing++
				}
			}
			fmt.Fprintf(stdout, "  Jobs:       %d (%d failing)\n", len(status.Jobs), failing)
			return nil
		},
	}
}
