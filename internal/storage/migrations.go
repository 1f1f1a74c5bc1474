package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application
// expects. If the database cannot be migrated to this version, it's a fatal
// error.
const ExpectedSchemaVersion = 3

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Accounts, transactions, processing states, categories",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS accounts (
					id TEXT PRIMARY KEY,
					bank_identifier TEXT NOT NULL,
					currency TEXT NOT NULL DEFAULT 'EUR',
					external_account_id TEXT NOT NULL DEFAULT '',
					is_active INTEGER NOT NULL DEFAULT 1,
					last_sync_at DATETIME,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,

				`CREATE TABLE IF NOT EXISTS transactions (
					account_id TEXT NOT NULL,
					provider_tx_id TEXT NOT NULL,
					date DATETIME NOT NULL,
					amount REAL NOT NULL,
					currency TEXT NOT NULL,
					counterparty TEXT NOT NULL DEFAULT '',
					counter_account TEXT NOT NULL DEFAULT '',
					memo TEXT NOT NULL DEFAULT '',
					type TEXT NOT NULL DEFAULT '',
					imported_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					PRIMARY KEY (account_id, provider_tx_id)
				)`,
				`CREATE INDEX idx_transactions_date ON transactions(date)`,

				`CREATE TABLE IF NOT EXISTS processing_states (
					account_id TEXT NOT NULL,
					provider_tx_id TEXT NOT NULL,
					status TEXT NOT NULL,
					is_duplicate INTEGER NOT NULL DEFAULT 0,
					suggested_payee TEXT NOT NULL DEFAULT '',
					suggested_category TEXT NOT NULL DEFAULT '',
					suggested_memo TEXT NOT NULL DEFAULT '',
					payee_confidence REAL NOT NULL DEFAULT 0,
					category_confidence REAL NOT NULL DEFAULT 0,
					override_payee TEXT NOT NULL DEFAULT '',
					override_category TEXT NOT NULL DEFAULT '',
					override_memo TEXT NOT NULL DEFAULT '',
					external_submission_id TEXT NOT NULL DEFAULT '',
					external_account_id TEXT NOT NULL DEFAULT '',
					last_error TEXT NOT NULL DEFAULT '',
					processed_at DATETIME,
					submitted_at DATETIME,
					PRIMARY KEY (account_id, provider_tx_id),
					FOREIGN KEY (account_id, provider_tx_id)
						REFERENCES transactions(account_id, provider_tx_id)
				)`,
				`CREATE INDEX idx_states_status ON processing_states(status)`,

				`CREATE TABLE IF NOT EXISTS categories (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					name TEXT UNIQUE NOT NULL,
					parent_id INTEGER REFERENCES categories(id),
					external_id TEXT NOT NULL DEFAULT '',
					is_active INTEGER NOT NULL DEFAULT 1,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`INSERT INTO categories (name) VALUES ('Uncategorized')`,
			}
			return execAll(tx, queries)
		},
	},
	{
		Version:     2,
		Description: "Cleanup rules and import batches",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS cleanup_rules (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					pattern_type TEXT NOT NULL,
					pattern TEXT NOT NULL,
					payee TEXT NOT NULL DEFAULT '',
					category TEXT NOT NULL DEFAULT '',
					memo TEXT NOT NULL DEFAULT '',
					confidence REAL NOT NULL DEFAULT 0,
					use_count INTEGER NOT NULL DEFAULT 0,
					success_count INTEGER NOT NULL DEFAULT 0,
					status TEXT NOT NULL DEFAULT 'approved',
					is_active INTEGER NOT NULL DEFAULT 1,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_rules_status ON cleanup_rules(status, is_active)`,

				`CREATE TABLE IF NOT EXISTS import_batches (
					account_id TEXT NOT NULL,
					sequence INTEGER NOT NULL,
					from_date DATETIME NOT NULL,
					to_date DATETIME NOT NULL,
					status TEXT NOT NULL,
					new_count INTEGER NOT NULL DEFAULT 0,
					duplicate_count INTEGER NOT NULL DEFAULT 0,
					error TEXT NOT NULL DEFAULT '',
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					PRIMARY KEY (account_id, sequence)
				)`,
			}
			return execAll(tx, queries)
		},
	},
	{
		Version:     3,
		Description: "Credentials and audit log",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS credentials (
					account_id TEXT PRIMARY KEY,
					encrypted_token TEXT NOT NULL,
					last_fetched_at DATETIME,
					last_sync_at DATETIME,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,

				`CREATE TABLE IF NOT EXISTS audit_log (
					event_id TEXT PRIMARY KEY,
					kind TEXT NOT NULL,
					account_id TEXT NOT NULL,
					message TEXT NOT NULL DEFAULT '',
					timestamp DATETIME NOT NULL
				)`,
				`CREATE INDEX idx_audit_account ON audit_log(account_id, timestamp)`,
			}
			return execAll(tx, queries)
		},
	},
}

func execAll(tx *sql.Tx, queries []string) error {
	for _, query := range queries {
		if _, err := tx.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}
	return nil
}

// Migrate brings the database schema up to the expected version.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	current, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}

		slog.Info("Applying migration", "version", m.Version, "description", m.Description)

		err := s.inTx(ctx, func(tx *sql.Tx) error {
			if err := m.Up(tx); err != nil {
				return fmt.Errorf("migration %d failed: %w", m.Version, err)
			}
			if _, err := tx.Exec(`INSERT INTO schema_version (version) VALUES (?)`, m.Version); err != nil {
				return fmt.Errorf("failed to record migration %d: %w", m.Version, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	return nil
}

// SchemaVersion returns the highest applied migration version.
func (s *SQLiteStorage) SchemaVersion(ctx context.Context) (int, error) {
	var version sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_version`).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return int(version.Int64), nil
}
