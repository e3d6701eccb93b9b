package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/pratik-mahalle/complyflow/internal/domain/job"
)

func newJobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and trigger scheduled jobs",
	}

	cmd.AddCommand(newJobsListCmd())
	cmd.AddCommand(newJobsHistoryCmd())
	cmd.AddCommand(newJobsTriggerCmd())
	cmd.AddCommand(newJobsRunAllCmd())

	return cmd
}

func newJobsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the job table with last and next runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := apiClient.Scheduler().Status(context.Background())
			if err != nil {
				return fmt.Errorf("failed to get scheduler status: %w", err)
			}
			return render(status, func() *Table {
				t := NewTable("ID", "ENABLED", "INTERVAL", "RUNS", "LAST RUN", "LAST RESULT", "NEXT RUN")
				for _, j := range status.Jobs {
					last, result := "-", "-"
					if j.LastRun != nil {
						last = formatTime(&j.LastRun.StartedAt)
						result = formatBool(j.LastRun.Success)
					}
					t.AddRow(j.ID, strconv.FormatBool(j.Enabled), j.Interval.String(),
						strconv.Itoa(j.RunCount), last, result, formatTime(j.NextRun))
				}
				return t
			})
		},
	}
}

func newJobsHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history [job-id]",
		Short: "Show recent job executions, newest first",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID := ""
			if len(args) == 1 {
				jobID = args[0]
			}
			results, err := apiClient.Scheduler().History(context.Background(), jobID, limit)
			if err != nil {
				return fmt.Errorf("failed to get job history: %w", err)
			}
			return renderResults(results)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of executions")
	return cmd
}

func newJobsTriggerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "trigger <job-id>",
		Short: "Run one job now and wait for the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := apiClient.Scheduler().Trigger(context.Background(), args[0])
			if err != nil {
				return fmt.Errorf("failed to trigger job: %w", err)
			}
			if err := renderResults([]*job.Result{result}); err != nil {
				return err
			}
			if !result.Success {
				return fmt.Errorf("job %s failed: %s", result.JobID, result.Error)
			}
			return nil
		},
	}
}

func newJobsRunAllCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run-all",
		Short: "Run every enabled job in table order",
		RunE: func(cmd *cobra.Command, args []string) error {
			results, err := apiClient.Scheduler().RunAll(context.Background())
			if err != nil {
				return fmt.Errorf("failed to run jobs: %w", err)
			}
			return renderResults(results)
		},
	}
}

func renderResults(results []*job.Result) error {
	return render(results, func() *Table {
		t := NewTable("JOB", "TRIGGER", "STARTED", "DURATION", "RESULT", "ERROR")
		for _, r := range results {
			t.AddRow(r.JobID, r.Trigger, formatTime(&r.StartedAt), r.Duration.String(),
				formatBool(r.Success), truncate(r.Error, 60))
		}
		return t
	})
}
