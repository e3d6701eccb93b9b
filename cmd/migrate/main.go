package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pratik-mahalle/complyflow/internal/config"
	"github.com/pratik-mahalle/complyflow/internal/pkg/logger"
	"github.com/pratik-mahalle/complyflow/internal/repository/postgres"
	"github.com/pratik-mahalle/complyflow/migrations"
)

func main() {
	root := &cobra.Command{
		Use:          "migrate",
		Short:        "Apply or inspect complyflow schema migrations",
		SilenceUsage: true,
	}

	root.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply every pending migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			db, err := postgres.New(cfg.Database)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer db.Close()

			log := logger.New(logger.Config{Level: cfg.Logging.Level, Format: "console"})
			applied, err := postgres.RunMigrations(db, migrations.Files, log)
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				fmt.Println("Database is up to date")
				return nil
			}
			fmt.Printf("Applied %d migration(s)\n", len(applied))
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "List pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			db, err := postgres.New(cfg.Database)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer db.Close()

			pending, err := postgres.PendingMigrations(db, migrations.Files)
			if err != nil {
				return err
			}
			if len(pending) == 0 {
				fmt.Println("No pending migrations")
				return nil
			}
			for _, name := range pending {
				fmt.Printf("pending  %s\n", name)
			}
			return nil
		},
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
