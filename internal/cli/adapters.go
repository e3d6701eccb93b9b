package cli

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/pratik-mahalle/complyflow/internal/adapterfile"
	"github.com/pratik-mahalle/complyflow/internal/config"
	"github.com/pratik-mahalle/complyflow/internal/domain/adapter"
	"github.com/pratik-mahalle/complyflow/internal/pkg/crypto"
	"github.com/pratik-mahalle/complyflow/internal/pkg/logger"
	"github.com/pratik-mahalle/complyflow/internal/repository/postgres"
)

func newAdaptersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "adapters",
		Short: "Manage evidence adapters",
	}

	cmd.AddCommand(newAdaptersImportCmd())
	cmd.AddCommand(newAdaptersHealthCmd())
	cmd.AddCommand(newAdaptersCollectCmd())

	return cmd
}

// newAdaptersImportCmd writes adapter definitions straight to the database
// configured by the server environment.
func newAdaptersImportCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "import <file.hcl>",
		Short: "Import adapter definitions from an HCL file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgs, err := adapterfile.Load(args[0], adapterfile.Environ())
			if err != nil {
				return err
			}

			if dryRun {
				rows := adapterRows(cfgs)
				return render(rows, func() *Table {
					t := NewTable("ID", "TENANT", "KIND", "NAME", "AUTH", "ENABLED", "POLLING")
					for _, r := range rows {
						t.AddRow(r.ID, r.TenantID, r.Kind, r.Name, r.AuthType, strconv.FormatBool(r.Enabled), r.PollingInterval)
					}
					return t
				})
			}

			appCfg, err := config.Load()
			if err != nil {
				return err
			}
			db, err := postgres.New(appCfg.Database)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer db.Close()

			sealer, err := crypto.NewSealer(appCfg.Security.CredentialKey)
			if err != nil {
				return err
			}
			log := logger.New(logger.Config{Level: appCfg.Logging.Level, Format: "console"})

			n, err := adapterfile.Import(context.Background(), postgres.NewAdapterConfigRepository(db, sealer), cfgs, log)
			if err != nil {
				return err
			}
			fmt.Printf("Imported %d adapter(s) from %s\n", n, args[0])
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "parse and validate only")
	return cmd
}

// adapterRow is the credential-free view of a parsed adapter definition
type adapterRow struct {
	ID              string `json:"id"`
	TenantID        string `json:"tenant_id"`
	Kind            string `json:"kind"`
	Name            string `json:"name"`
	AuthType        string `json:"auth_type"`
	Enabled         bool   `json:"enabled"`
	PollingInterval string `json:"polling_interval"`
}

func adapterRows(cfgs []*adapter.Config) []adapterRow {
	rows := make([]adapterRow, 0, len(cfgs))
	for _, c := range cfgs {
		rows = append(rows, adapterRow{
			ID:              c.ID,
			TenantID:        c.TenantID,
			Kind:            string(c.Kind),
			Name:            c.Name,
			AuthType:        string(c.Credentials.AuthType),
			Enabled:         c.Enabled,
			PollingInterval: c.PollingInterval.String(),
		})
	}
	return rows
}

func newAdaptersHealthCmd() *cobra.Command {
	var probe bool

	cmd := &cobra.Command{
		Use:   "health <tenant>",
		Short: "Show adapter health, probing every adapter with --probe",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			if probe {
				report, err := apiClient.Adapters().Probe(ctx, args[0])
				if err != nil {
					return fmt.Errorf("failed to probe adapters: %w", err)
				}
				return render(report, func() *Table {
					ids := make([]string, 0, len(report.Statuses))
					for id := range report.Statuses {
						ids = append(ids, id)
					}
					sort.Strings(ids)
					t := NewTable("ADAPTER", "HEALTH", "LATENCY", "MESSAGE")
					for _, id := range ids {
						s := report.Statuses[id]
						t.AddRow(id, healthLabel(&s), s.Latency.Round(time.Millisecond).String(), truncate(s.Message, 60))
					}
					return t
				})
			}

			summary, err := apiClient.Adapters().Health(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to get adapter health: %w", err)
			}
			return render(summary, func() *Table {
				ids := make([]string, 0, len(summary.Adapters))
				for id := range summary.Adapters {
					ids = append(ids, id)
				}
				sort.Strings(ids)
				t := NewTable("ADAPTER", "KIND", "HEALTH", "BREAKER", "CHECKED")
				for _, id := range ids {
					a := summary.Adapters[id]
					checked := "-"
					if a.Health != nil {
						checked = formatTime(&a.Health.Timestamp)
					}
					t.AddRow(id, string(a.Kind), healthLabel(a.Health), a.Breaker, checked)
				}
				for id, msg := range summary.RegistrationErrors {
					t.AddRow(id, "-", formatStatus("failed"), "-", truncate(msg, 60))
				}
				return t
			})
		},
	}

	cmd.Flags().BoolVar(&probe, "probe", false, "probe every adapter now")
	return cmd
}

func newAdaptersCollectCmd() *cobra.Command {
	var (
		since time.Duration
		limit int
		types []string
	)

	cmd := &cobra.Command{
		Use:   "collect <tenant>",
		Short: "Collect evidence from every adapter of a tenant now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := adapter.CollectionOptions{Limit: limit, Types: types}
			if since > 0 {
				from := time.Now().Add(-since).UTC()
				opts.Since = &from
			}

			summary, err := apiClient.Adapters().Collect(context.Background(), args[0], opts)
			if err != nil {
				return fmt.Errorf("failed to collect evidence: %w", err)
			}
			return render(summary, func() *Table {
				ids := make([]string, 0, len(summary.Bulk.Results))
				for id := range summary.Bulk.Results {
					ids = append(ids, id)
				}
				sort.Strings(ids)
				t := NewTable("ADAPTER", "RESULT", "EVIDENCE", "DURATION", "ERROR")
				for _, id := range ids {
					r := summary.Bulk.Results[id]
					errMsg := ""
					if len(r.Errors) > 0 {
						errMsg = r.Errors[0].Message
					}
					t.AddRow(id, formatBool(r.Success), strconv.Itoa(len(r.Evidence)),
						r.Metadata.Duration.Round(time.Millisecond).String(), truncate(errMsg, 60))
				}
				return t
			})
		},
	}

	cmd.Flags().DurationVar(&since, "since", 0, "collect evidence newer than this (server default when 0)")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum items per adapter")
	cmd.Flags().StringSliceVar(&types, "type", nil, "evidence types to collect")
	return cmd
}

func healthLabel(h *adapter.HealthStatus) string {
	switch {
	case h == nil:
		return formatStatus("unknown")
	case h.Healthy:
		return formatStatus("healthy")
	default:
		return formatStatus("unhealthy")
	}
}
