package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
// If the database cannot be migrated to this version, it's a fatal error.
const ExpectedSchemaVersion = 4

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial plan schema",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS plans (
					id TEXT PRIMARY KEY,
					case_ref TEXT NOT NULL,
					name TEXT NOT NULL,
					period_type TEXT NOT NULL,
					period_count INTEGER NOT NULL,
					start_date DATETIME NOT NULL,
					opening_balance_cents INTEGER NOT NULL,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_plans_case_ref ON plans(case_ref)`,

				`CREATE TABLE IF NOT EXISTS cashflow_categories (
					id TEXT PRIMARY KEY,
					plan_id TEXT NOT NULL,
					name TEXT NOT NULL,
					flow_type TEXT NOT NULL,
					estate_type TEXT NOT NULL,
					display_order INTEGER DEFAULT 0,
					FOREIGN KEY (plan_id) REFERENCES plans(id)
				)`,
				`CREATE INDEX idx_categories_plan ON cashflow_categories(plan_id)`,

				`CREATE TABLE IF NOT EXISTS cashflow_lines (
					id TEXT PRIMARY KEY,
					plan_id TEXT NOT NULL,
					category_id TEXT NOT NULL,
					name TEXT NOT NULL,
					display_order INTEGER DEFAULT 0,
					FOREIGN KEY (plan_id) REFERENCES plans(id),
					FOREIGN KEY (category_id) REFERENCES cashflow_categories(id)
				)`,
				`CREATE INDEX idx_lines_plan ON cashflow_lines(plan_id)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     2,
		Description: "Period values with one cell per line, period and value type",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS period_values (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					plan_id TEXT NOT NULL,
					line_id TEXT NOT NULL,
					value_type TEXT NOT NULL,
					period_index INTEGER NOT NULL,
					amount_cents INTEGER NOT NULL,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					FOREIGN KEY (plan_id) REFERENCES plans(id),
					FOREIGN KEY (line_id) REFERENCES cashflow_lines(id),
					UNIQUE (line_id, period_index, value_type)
				)`,
				`CREATE INDEX idx_period_values_plan ON period_values(plan_id)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     3,
		Description: "Append-only plan versions with data hash",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS plan_versions (
					id TEXT PRIMARY KEY,
					plan_id TEXT NOT NULL,
					version INTEGER NOT NULL,
					opening_balance_cents INTEGER NOT NULL,
					data_hash TEXT NOT NULL,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					FOREIGN KEY (plan_id) REFERENCES plans(id),
					UNIQUE (plan_id, version)
				)`,
				`CREATE TABLE IF NOT EXISTS plan_version_values (
					version_id TEXT NOT NULL,
					line_id TEXT NOT NULL,
					value_type TEXT NOT NULL,
					period_index INTEGER NOT NULL,
					amount_cents INTEGER NOT NULL,
					FOREIGN KEY (version_id) REFERENCES plan_versions(id)
				)`,
				`CREATE INDEX idx_version_values_version ON plan_version_values(version_id)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     4,
		Description: "Ledger entries with estate allocation fields",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS ledger_entries (
					id TEXT PRIMARY KEY,
					plan_id TEXT NOT NULL,
					transaction_date DATETIME NOT NULL,
					description TEXT,
					amount_cents INTEGER NOT NULL,
					value_type TEXT NOT NULL,
					category_tag TEXT,
					counterparty_ref TEXT,
					location_ref TEXT,
					service_period_start DATETIME,
					service_period_end DATETIME,
					estate_allocation TEXT,
					estate_ratio TEXT,
					allocation_source TEXT,
					allocation_note TEXT,
					review_status TEXT NOT NULL DEFAULT 'UNREVIEWED',
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					FOREIGN KEY (plan_id) REFERENCES plans(id)
				)`,
				`CREATE INDEX idx_ledger_plan ON ledger_entries(plan_id)`,
				`CREATE INDEX idx_ledger_date ON ledger_entries(transaction_date)`,
				`CREATE INDEX idx_ledger_allocation ON ledger_entries(estate_allocation)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
}

// Migrate applies all pending database migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	var currentVersion int
	err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	var finalVersion int
	err = s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&finalVersion)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}

	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}
