package postgres

import (
	"database/sql"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pratik-mahalle/complyflow/internal/pkg/logger"
)

// RunMigrations applies every pending *.sql file of migrationsFS in name
// order and returns the names it applied.
func RunMigrations(db *sql.DB, migrationsFS fs.FS, log *logger.Logger) ([]string, error) {
	if log == nil {
		log = logger.Nop()
	}

	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version VARCHAR(255) PRIMARY KEY,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create schema_migrations table: %w", err)
	}

	applied, err := AppliedMigrations(db)
	if err != nil {
		return nil, err
	}

	pending, err := pendingFiles(migrationsFS, applied)
	if err != nil {
		return nil, err
	}

	var done []string
	for _, filename := range pending {
		content, err := fs.ReadFile(migrationsFS, filepath.Join(".", filename))
		if err != nil {
			return done, fmt.Errorf("failed to read migration file %s: %w", filename, err)
		}

		tx, err := db.Begin()
		if err != nil {
			return done, fmt.Errorf("failed to start transaction for %s: %w", filename, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return done, fmt.Errorf("failed to execute migration %s: %w", filename, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES ($1)", filename); err != nil {
			tx.Rollback()
			return done, fmt.Errorf("failed to record migration %s: %w", filename, err)
		}

		if err := tx.Commit(); err != nil {
			return done, fmt.Errorf("failed to commit migration %s: %w", filename, err)
		}

		log.With("version", filename).Info("Applied migration")
		done = append(done, filename)
	}

	return done, nil
}

// AppliedMigrations returns the recorded migration versions
func AppliedMigrations(db *sql.DB) (map[string]bool, error) {
	applied := make(map[string]bool)
	rows, err := db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

// PendingMigrations lists the migration files not yet applied
func PendingMigrations(db *sql.DB, migrationsFS fs.FS) ([]string, error) {
	applied, err := AppliedMigrations(db)
	if err != nil {
		return nil, err
	}
	return pendingFiles(migrationsFS, applied)
}

func pendingFiles(migrationsFS fs.FS, applied map[string]bool) ([]string, error) {
	entries, err := fs.ReadDir(migrationsFS, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		if !applied[entry.Name()] {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}
