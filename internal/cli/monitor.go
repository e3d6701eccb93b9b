package cli

import (
	"context"
	"fmt"
	"os/user"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/pratik-mahalle/complyflow/internal/domain/monitoring"
)

func newMonitorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Run the monitoring engine for a tenant and framework",
	}

	cmd.AddCommand(newMonitorCheckCmd())
	cmd.AddCommand(newMonitorHealthCmd())
	cmd.AddCommand(newMonitorTrendCmd())
	cmd.AddCommand(newMonitorDriftCmd())
	cmd.AddCommand(newMonitorBaselineCmd())

	return cmd
}

func newMonitorCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <tenant> <framework>",
		Short: "Run the composite check now, raising alerts",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := apiClient.Monitoring().Check(context.Background(), args[0], args[1])
			if err != nil {
				return fmt.Errorf("failed to run check: %w", err)
			}
			return render(result, func() *Table {
				t := NewTable("FIELD", "VALUE")
				t.AddRow("Score", fmt.Sprintf("%.1f (was %.1f, %+.1f)", result.CurrentScore, result.PreviousScore, result.ScoreDelta))
				t.AddRow("Degraded controls", strconv.Itoa(result.DegradedControls))
				t.AddRow("Improved controls", strconv.Itoa(result.ImprovedControls))
				t.AddRow("Expiring evidence", strconv.Itoa(result.ExpiringEvidence))
				t.AddRow("Expired evidence", strconv.Itoa(result.ExpiredEvidence))
				t.AddRow("Overdue remediations", strconv.Itoa(result.OverdueRemediations))
				t.AddRow("Alerts created", strconv.Itoa(result.AlertsCreated))
				for _, e := range result.Errors {
					t.AddRow("Error", truncate(e, 80))
				}
				return t
			})
		},
	}
}

func newMonitorHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health <tenant> <framework>",
		Short: "Summarize the posture without raising alerts",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := apiClient.Monitoring().Health(context.Background(), args[0], args[1])
			if err != nil {
				return fmt.Errorf("failed to get monitoring health: %w", err)
			}
			return render(h, func() *Table {
				t := NewTable("FIELD", "VALUE")
				t.AddRow("Status", formatStatus(h.Status))
				t.AddRow("Current score", formatScore(h.CurrentScore))
				t.AddRow("Baseline score", formatScore(h.BaselineScore))
				t.AddRow("Delta", fmt.Sprintf("%+.1f", h.ScoreDelta))
				t.AddRow("Degraded controls", strconv.Itoa(h.DegradedControls))
				t.AddRow("Critical drifts", strconv.Itoa(h.CriticalDrifts))
				t.AddRow("Unresolved alerts", strconv.Itoa(h.UnresolvedAlerts))
				t.AddRow("Last baseline", formatTime(h.LastBaselineAt))
				t.AddRow("Last check", formatTime(h.LastCheckAt))
				return t
			})
		},
	}
}

func newMonitorTrendCmd() *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "trend <tenant> <framework>",
		Short: "Show completed assessment scores over time",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			points, err := apiClient.Monitoring().Trend(context.Background(), args[0], args[1], days)
			if err != nil {
				return fmt.Errorf("failed to get trend: %w", err)
			}
			return render(points, func() *Table {
				t := NewTable("DATE", "SCORE", "ASSESSMENT")
				for i := range points {
					t.AddRow(formatTime(&points[i].Date), fmt.Sprintf("%.1f", points[i].Score), points[i].AssessmentID)
				}
				return t
			})
		},
	}

	cmd.Flags().IntVar(&days, "days", 0, "window in days (server default when 0)")
	return cmd
}

func newMonitorDriftCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "drift <tenant> <framework> <assessment-id>",
		Short: "Compare an assessment against the latest baseline",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			drift, err := apiClient.Monitoring().Drift(context.Background(), args[0], args[1], args[2])
			if err != nil {
				return fmt.Errorf("failed to detect drift: %w", err)
			}
			if !all {
				drift = changedOnly(drift)
			}
			return render(drift, func() *Table {
				t := NewTable("CONTROL", "FROM", "TO", "DELTA", "CHANGE", "SEVERITY")
				for _, d := range drift {
					t.AddRow(d.ControlID, d.PreviousStatus, d.CurrentStatus, fmt.Sprintf("%+.0f", d.Delta),
						formatStatus(string(d.Classification)), formatSeverity(string(d.Severity)))
				}
				return t
			})
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "include unchanged controls")
	return cmd
}

func newMonitorBaselineCmd() *cobra.Command {
	var capture, capturedBy string

	cmd := &cobra.Command{
		Use:   "baseline <tenant> <framework>",
		Short: "Show the latest baseline, or capture one with --capture",
		Args:  cobra.RangeArgs(0, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			if capture != "" {
				if capturedBy == "" {
					capturedBy = currentUser()
				}
				b, err := apiClient.Monitoring().CaptureBaseline(ctx, capture, capturedBy)
				if err != nil {
					return fmt.Errorf("failed to capture baseline: %w", err)
				}
				fmt.Printf("Baseline %s captured for %s/%s (score %.1f, %d controls)\n",
					b.ID, b.TenantID, b.Framework, b.OverallScore, len(b.Controls))
				return nil
			}

			if len(args) != 2 {
				return fmt.Errorf("tenant and framework are required unless --capture is set")
			}
			b, err := apiClient.Monitoring().LatestBaseline(ctx, args[0], args[1])
			if err != nil {
				return fmt.Errorf("failed to get baseline: %w", err)
			}
			return render(b, func() *Table {
				ids := make([]string, 0, len(b.Controls))
				for id := range b.Controls {
					ids = append(ids, id)
				}
				sort.Strings(ids)
				t := NewTable("CONTROL", "STATUS", "SCORE", "EVIDENCE")
				for _, id := range ids {
					c := b.Controls[id]
					t.AddRow(id, string(c.Status), fmt.Sprintf("%.0f", c.Score), strconv.Itoa(c.EvidenceCount))
				}
				return t
			})
		},
	}

	cmd.Flags().StringVar(&capture, "capture", "", "capture a baseline from this completed assessment id")
	cmd.Flags().StringVar(&capturedBy, "by", "", "who captured the baseline (default: current user)")
	return cmd
}

func changedOnly(drift []monitoring.DriftResult) []monitoring.DriftResult {
	out := make([]monitoring.DriftResult, 0, len(drift))
	for _, d := range drift {
		if d.Classification != monitoring.Unchanged || d.EvidenceCountChanged {
			out = append(out, d)
		}
	}
	return out
}

func formatScore(score *float64) string {
	if score == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f", *score)
}

func currentUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "cli"
}
