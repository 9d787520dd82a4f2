package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
// If the database cannot be migrated to this version, it's a fatal error.
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
		Description: "Import sessions and draft transactions",
		Up: func(tx *sql.Tx) error {
			return execAll(tx,
				`CREATE TABLE IF NOT EXISTS import_sessions (
					id TEXT PRIMARY KEY,
					file_name TEXT NOT NULL,
					status TEXT NOT NULL DEFAULT 'draft',
					imported_count INTEGER NOT NULL DEFAULT 0,
					created_at DATETIME NOT NULL,
					updated_at DATETIME NOT NULL
				)`,
				`CREATE TABLE IF NOT EXISTS transactions (
					id TEXT PRIMARY KEY,
					session_id TEXT NOT NULL REFERENCES import_sessions(id) ON DELETE CASCADE,
					hash TEXT NOT NULL,
					date DATETIME NOT NULL,
					amount TEXT NOT NULL,
					number TEXT NOT NULL DEFAULT '',
					description TEXT NOT NULL DEFAULT '',
					payer TEXT NOT NULL DEFAULT '',
					payer_inn TEXT NOT NULL DEFAULT '',
					payer_account TEXT NOT NULL DEFAULT '',
					receiver TEXT NOT NULL DEFAULT '',
					receiver_inn TEXT NOT NULL DEFAULT '',
					receiver_account TEXT NOT NULL DEFAULT '',
					currency TEXT NOT NULL DEFAULT '',
					direction TEXT NOT NULL DEFAULT '',
					counterparty_id TEXT NOT NULL DEFAULT '',
					article_id TEXT NOT NULL DEFAULT '',
					account_id TEXT NOT NULL DEFAULT '',
					deal_id TEXT NOT NULL DEFAULT '',
					department_id TEXT NOT NULL DEFAULT '',
					locked_fields INTEGER NOT NULL DEFAULT 0,
					is_duplicate BOOLEAN NOT NULL DEFAULT 0,
					processed BOOLEAN NOT NULL DEFAULT 0,
					created_at DATETIME NOT NULL,
					updated_at DATETIME NOT NULL
				)`,
				`CREATE INDEX IF NOT EXISTS idx_transactions_session ON transactions(session_id, processed)`,
				`CREATE INDEX IF NOT EXISTS idx_transactions_hash ON transactions(hash)`,
			)
		},
	},
	{
		Version:     2,
		Description: "Mapping rules with usage metadata",
		Up: func(tx *sql.Tx) error {
			return execAll(tx,
				`CREATE TABLE IF NOT EXISTS mapping_rules (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					rule_type TEXT NOT NULL CHECK (rule_type IN ('contains', 'equals', 'regex', 'alias')),
					source_field TEXT NOT NULL CHECK (source_field IN ('description', 'receiver', 'payer', 'inn')),
					pattern TEXT NOT NULL,
					target_type TEXT NOT NULL CHECK (target_type IN ('article', 'counterparty', 'account', 'operationType')),
					target_id TEXT NOT NULL,
					target_name TEXT NOT NULL DEFAULT '',
					usage_count INTEGER NOT NULL DEFAULT 0,
					last_used_at DATETIME,
					created_at DATETIME NOT NULL,
					updated_at DATETIME NOT NULL
				)`,
				`CREATE INDEX IF NOT EXISTS idx_mapping_rules_target ON mapping_rules(target_type)`,
			)
		},
	},
	{
		Version:     3,
		Description: "Alias synonyms for alias rules",
		Up: func(tx *sql.Tx) error {
			return execAll(tx,
				`CREATE TABLE IF NOT EXISTS aliases (
					canonical TEXT NOT NULL,
					alias TEXT NOT NULL,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					PRIMARY KEY (canonical, alias)
				)`,
			)
		},
	},
}

func execAll(tx *sql.Tx, queries ...string) error {
	for _, query := range queries {
		if _, err := tx.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query '%s': %w", query, err)
		}
	}
	return nil
}

// Migrate brings the schema up to ExpectedSchemaVersion.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	currentVersion, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
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

	finalVersion, err := s.SchemaVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}
	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}
