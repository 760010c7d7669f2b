package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

const currentSchemaVersion = 2

// migrationManager applies numbered SQL migrations in order, tracked in a
// schema_migrations table. Mirrors operion/pkg/persistence/sqlbase's
// migration manager, retargeted at the events/outbox/snapshots/dlq schema.
type migrationManager struct {
	db         *sql.DB
	logger     *slog.Logger
	migrations map[int]string
}

func newMigrationManager(logger *slog.Logger, db *sql.DB) *migrationManager {
	return &migrationManager{db: db, logger: logger, migrations: migrations()}
}

func (m *migrationManager) run(ctx context.Context) error {
	if _, err := m.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMPTZ DEFAULT NOW()
		)
	`); err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}

	var version int

	err := m.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		return fmt.Errorf("failed to get current schema version: %w", err)
	}

	m.logger.InfoContext(ctx, "current schema version", "version", version)

	for v := version + 1; v <= currentSchemaVersion; v++ {
		stmt, ok := m.migrations[v]
		if !ok {
			continue
		}

		tx, err := m.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin migration tx: %w", err)
		}

		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			_ = tx.Rollback()

			return fmt.Errorf("failed to apply migration %d: %w", v, err)
		}

		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", v); err != nil {
			_ = tx.Rollback()

			return fmt.Errorf("failed to record migration %d: %w", v, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", v, err)
		}

		m.logger.InfoContext(ctx, "applied migration", "version", v)
	}

	return nil
}

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE IF NOT EXISTS events (
				id TEXT PRIMARY KEY,
				correlation_id TEXT NOT NULL,
				sequence_number BIGINT NOT NULL,
				type TEXT NOT NULL,
				payload JSONB NOT NULL,
				idempotency_key TEXT NOT NULL,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				UNIQUE (correlation_id, sequence_number),
				UNIQUE (correlation_id, idempotency_key)
			);
			CREATE INDEX IF NOT EXISTS idx_events_correlation ON events (correlation_id, sequence_number);

			CREATE TABLE IF NOT EXISTS outbox (
				event_id TEXT PRIMARY KEY REFERENCES events (id),
				correlation_id TEXT NOT NULL,
				sequence_number BIGINT NOT NULL,
				type TEXT NOT NULL,
				payload JSONB NOT NULL,
				idempotency_key TEXT NOT NULL DEFAULT '',
				published_at TIMESTAMPTZ,
				attempts INTEGER NOT NULL DEFAULT 0,
				last_error TEXT
			);
			CREATE INDEX IF NOT EXISTS idx_outbox_unpublished ON outbox (event_id) WHERE published_at IS NULL;

			CREATE TABLE IF NOT EXISTS snapshots (
				id TEXT PRIMARY KEY,
				correlation_id TEXT NOT NULL,
				up_to_sequence BIGINT NOT NULL,
				run_context JSONB NOT NULL,
				ready_set JSONB NOT NULL,
				pending_humans JSONB NOT NULL,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_snapshots_correlation ON snapshots (correlation_id, up_to_sequence DESC);

			CREATE TABLE IF NOT EXISTS dlq (
				event_id TEXT PRIMARY KEY REFERENCES events (id),
				error TEXT NOT NULL,
				quarantine_until TIMESTAMPTZ NOT NULL,
				manual_retries INTEGER NOT NULL DEFAULT 0
			);
		`,
		2: `
			CREATE TABLE IF NOT EXISTS workflow_specs (
				id TEXT PRIMARY KEY,
				spec_yaml TEXT NOT NULL,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);

			CREATE TABLE IF NOT EXISTS runs (
				correlation_id TEXT PRIMARY KEY,
				workflow_id TEXT NOT NULL REFERENCES workflow_specs (id),
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_runs_workflow ON runs (workflow_id);
		`,
	}
}
