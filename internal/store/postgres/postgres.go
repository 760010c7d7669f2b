// Package postgres implements the Event Store adapter (C2) on top of
// PostgreSQL, mirroring operion/pkg/persistence/postgresql's connection and
// migration-on-boot pattern.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/aob/internal/store"
	"github.com/dukex/aob/pkg/models"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

// Store is a PostgreSQL-backed EventStore.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// New connects to databaseURL and runs pending migrations.
func New(ctx context.Context, logger *slog.Logger, databaseURL string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := newMigrationManager(logger, db).run(ctx); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// DB exposes the underlying connection pool for sibling components (the
// DLQ and retention sweeper) that share the same database as the event
// store per the persisted state layout in spec §6.
func (s *Store) DB() *sql.DB { return s.db }

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database connection: %w", err)
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

func (s *Store) Append(ctx context.Context, correlationID string, events []models.Event, outbox []models.OutboxEntry) (store.AppendResult, error) {
	result := store.AppendResult{Conflicts: make(map[string]models.Event)}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return store.AppendResult{}, fmt.Errorf("failed to begin append tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var lastType models.EventType

	err = tx.QueryRowContext(ctx, `
		SELECT type FROM events WHERE correlation_id = $1 ORDER BY sequence_number DESC LIMIT 1
	`, correlationID).Scan(&lastType)
	if err != nil && err != sql.ErrNoRows {
		return store.AppendResult{}, fmt.Errorf("failed to read last event: %w", err)
	}

	if lastType.IsTerminal() {
		return store.AppendResult{}, store.ErrSequenceConflict
	}

	var nextSeq int64

	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(sequence_number), 0) + 1 FROM events WHERE correlation_id = $1
	`, correlationID).Scan(&nextSeq)
	if err != nil {
		return store.AppendResult{}, fmt.Errorf("failed to compute next sequence: %w", err)
	}

	outboxByEvent := make(map[string]models.OutboxEntry, len(outbox))
	for _, o := range outbox {
		outboxByEvent[o.EventID] = o
	}

	for _, e := range events {
		if e.IdempotencyKey != "" {
			var existingID string

			err := tx.QueryRowContext(ctx, `
				SELECT id FROM events WHERE correlation_id = $1 AND idempotency_key = $2
			`, correlationID, e.IdempotencyKey).Scan(&existingID)

			switch {
			case err == nil:
				existing, loadErr := s.loadOne(ctx, tx, existingID)
				if loadErr != nil {
					return store.AppendResult{}, loadErr
				}

				result.Conflicts[e.IdempotencyKey] = existing

				continue
			case err != sql.ErrNoRows:
				return store.AppendResult{}, fmt.Errorf("failed to check idempotency key: %w", err)
			}
		}

		payload, err := json.Marshal(e.Payload)
		if err != nil {
			return store.AppendResult{}, fmt.Errorf("failed to marshal payload: %w", err)
		}

		e.SequenceNumber = nextSeq
		nextSeq++

		if e.ID == "" {
			e.ID = uuid.NewString()
		}

		if e.CreatedAt.IsZero() {
			e.CreatedAt = time.Now().UTC()
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO events (id, correlation_id, sequence_number, type, payload, idempotency_key, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, e.ID, correlationID, e.SequenceNumber, string(e.Type), payload, e.IdempotencyKey, e.CreatedAt)
		if err != nil {
			return store.AppendResult{}, fmt.Errorf("failed to insert event: %w", err)
		}

		if o, ok := outboxByEvent[e.ID]; ok {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO outbox (event_id, correlation_id, sequence_number, type, payload, idempotency_key, attempts, last_error)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			`, o.EventID, correlationID, e.SequenceNumber, string(e.Type), payload, e.IdempotencyKey, o.Attempts, nullIfEmpty(o.LastError))
			if err != nil {
				return store.AppendResult{}, fmt.Errorf("failed to insert outbox entry: %w", err)
			}
		}

		result.Events = append(result.Events, e)
	}

	if err := tx.Commit(); err != nil {
		return store.AppendResult{}, fmt.Errorf("failed to commit append tx: %w", err)
	}

	return result, nil
}

func (s *Store) loadOne(ctx context.Context, tx *sql.Tx, id string) (models.Event, error) {
	var (
		e       models.Event
		payload []byte
		typ     string
	)

	err := tx.QueryRowContext(ctx, `
		SELECT id, correlation_id, sequence_number, type, payload, idempotency_key, created_at
		FROM events WHERE id = $1
	`, id).Scan(&e.ID, &e.CorrelationID, &e.SequenceNumber, &typ, &payload, &e.IdempotencyKey, &e.CreatedAt)
	if err != nil {
		return models.Event{}, fmt.Errorf("failed to load event %s: %w", id, err)
	}

	e.Type = models.EventType(typ)
	if err := json.Unmarshal(payload, &e.Payload); err != nil {
		return models.Event{}, fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	return e, nil
}

func (s *Store) Load(ctx context.Context, correlationID string, fromSeq int64) ([]models.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, correlation_id, sequence_number, type, payload, idempotency_key, created_at
		FROM events WHERE correlation_id = $1 AND sequence_number >= $2
		ORDER BY sequence_number ASC
	`, correlationID, fromSeq)
	if err != nil {
		return nil, fmt.Errorf("failed to load events: %w", err)
	}
	defer rows.Close()

	var out []models.Event

	for rows.Next() {
		var (
			e       models.Event
			payload []byte
			typ     string
		)

		if err := rows.Scan(&e.ID, &e.CorrelationID, &e.SequenceNumber, &typ, &payload, &e.IdempotencyKey, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}

		e.Type = models.EventType(typ)
		if err := json.Unmarshal(payload, &e.Payload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
		}

		out = append(out, e)
	}

	return out, rows.Err()
}

func (s *Store) WriteSnapshot(ctx context.Context, snap models.Snapshot) error {
	runCtx, err := json.Marshal(snap.RunContext)
	if err != nil {
		return fmt.Errorf("failed to marshal run context: %w", err)
	}

	ready, err := json.Marshal(snap.ReadySet)
	if err != nil {
		return fmt.Errorf("failed to marshal ready set: %w", err)
	}

	pending, err := json.Marshal(snap.PendingHumans)
	if err != nil {
		return fmt.Errorf("failed to marshal pending humans: %w", err)
	}

	if snap.ID == "" {
		snap.ID = uuid.NewString()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO snapshots (id, correlation_id, up_to_sequence, run_context, ready_set, pending_humans, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
	`, snap.ID, snap.CorrelationID, snap.UpToSequence, runCtx, ready, pending)
	if err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}

	return nil
}

func (s *Store) ReadSnapshot(ctx context.Context, correlationID string) (models.Snapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, correlation_id, up_to_sequence, run_context, ready_set, pending_humans, created_at
		FROM snapshots WHERE correlation_id = $1 ORDER BY up_to_sequence DESC LIMIT 1
	`, correlationID)

	return scanSnapshot(row)
}

func scanSnapshot(row *sql.Row) (models.Snapshot, error) {
	var (
		snap                          models.Snapshot
		runCtx, readySet, pendingHum  []byte
	)

	err := row.Scan(&snap.ID, &snap.CorrelationID, &snap.UpToSequence, &runCtx, &readySet, &pendingHum, &snap.CreatedAt)
	if err == sql.ErrNoRows {
		return models.Snapshot{}, store.ErrSnapshotNotFound
	}

	if err != nil {
		return models.Snapshot{}, fmt.Errorf("failed to read snapshot: %w", err)
	}

	if err := json.Unmarshal(runCtx, &snap.RunContext); err != nil {
		return models.Snapshot{}, fmt.Errorf("failed to unmarshal run context: %w", err)
	}

	if err := json.Unmarshal(readySet, &snap.ReadySet); err != nil {
		return models.Snapshot{}, fmt.Errorf("failed to unmarshal ready set: %w", err)
	}

	if err := json.Unmarshal(pendingHum, &snap.PendingHumans); err != nil {
		return models.Snapshot{}, fmt.Errorf("failed to unmarshal pending humans: %w", err)
	}

	return snap, nil
}

func (s *Store) ListSnapshots(ctx context.Context, correlationID string) ([]models.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, correlation_id, up_to_sequence, run_context, ready_set, pending_humans, created_at
		FROM snapshots WHERE correlation_id = $1 ORDER BY up_to_sequence ASC
	`, correlationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	var out []models.Snapshot

	for rows.Next() {
		var (
			snap                         models.Snapshot
			runCtx, readySet, pendingHum []byte
		)

		if err := rows.Scan(&snap.ID, &snap.CorrelationID, &snap.UpToSequence, &runCtx, &readySet, &pendingHum, &snap.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot row: %w", err)
		}

		_ = json.Unmarshal(runCtx, &snap.RunContext)
		_ = json.Unmarshal(readySet, &snap.ReadySet)
		_ = json.Unmarshal(pendingHum, &snap.PendingHumans)

		out = append(out, snap)
	}

	return out, rows.Err()
}

func (s *Store) ScanOutbox(ctx context.Context, limit int, afterCursor string) ([]models.OutboxEntry, string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT o.event_id, o.correlation_id, o.sequence_number, o.type, o.payload, o.idempotency_key, o.published_at, o.attempts, o.last_error
		FROM outbox o
		JOIN events e ON e.id = o.event_id
		WHERE o.published_at IS NULL AND ($1 = '' OR e.created_at >= (
			SELECT created_at FROM events WHERE id = $1
		))
		ORDER BY e.correlation_id, e.sequence_number
		LIMIT $2
	`, afterCursor, limit)
	if err != nil {
		return nil, "", fmt.Errorf("failed to scan outbox: %w", err)
	}
	defer rows.Close()

	var (
		out    []models.OutboxEntry
		cursor = afterCursor
	)

	for rows.Next() {
		var (
			o         models.OutboxEntry
			typ       string
			payload   []byte
			lastErr   sql.NullString
		)

		if err := rows.Scan(&o.EventID, &o.CorrelationID, &o.SequenceNumber, &typ, &payload, &o.IdempotencyKey, &o.PublishedAt, &o.Attempts, &lastErr); err != nil {
			return nil, "", fmt.Errorf("failed to scan outbox row: %w", err)
		}

		o.Type = models.EventType(typ)
		if err := json.Unmarshal(payload, &o.Payload); err != nil {
			return nil, "", fmt.Errorf("failed to unmarshal outbox payload: %w", err)
		}

		o.LastError = lastErr.String
		out = append(out, o)
		cursor = o.EventID
	}

	return out, cursor, rows.Err()
}

func (s *Store) MarkPublished(ctx context.Context, ids []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin mark-published tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, id := range ids {
		_, err := tx.ExecContext(ctx, `
			UPDATE outbox SET published_at = NOW() WHERE event_id = $1
		`, id)
		if err != nil {
			return fmt.Errorf("failed to mark %s published: %w", id, err)
		}
	}

	return tx.Commit()
}

func (s *Store) MarkPublishFailed(ctx context.Context, eventID, errMsg string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE outbox SET attempts = attempts + 1, last_error = $2 WHERE event_id = $1
	`, eventID, errMsg)
	if err != nil {
		return fmt.Errorf("failed to record publish failure for %s: %w", eventID, err)
	}

	return nil
}

func (s *Store) NextSequence(ctx context.Context, correlationID string) (int64, error) {
	var next int64

	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(sequence_number), 0) + 1 FROM events WHERE correlation_id = $1
	`, correlationID).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("failed to compute next sequence: %w", err)
	}

	return next, nil
}

// PurgeSnapshots deletes snapshot rows older than olderThan, excluding
// each correlation_id's most recent snapshot (kept regardless of age so
// replay never degrades to a full from-zero scan).
func (s *Store) PurgeSnapshots(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM snapshots
		WHERE created_at < $1
		AND id NOT IN (
			SELECT DISTINCT ON (correlation_id) id
			FROM snapshots
			ORDER BY correlation_id, up_to_sequence DESC
		)
	`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to purge snapshots: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count purged snapshots: %w", err)
	}

	return n, nil
}

// PurgeEvents deletes events (and their outbox rows) older than
// olderThan whose publication already completed. dlq rows reference
// events via a foreign key, so a quarantined event's row survives until
// its dlq entry is purged or requeued-and-republished.
func (s *Store) PurgeEvents(ctx context.Context, olderThan time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin purge tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		DELETE FROM outbox
		WHERE published_at IS NOT NULL
		AND event_id IN (
			SELECT id FROM events WHERE created_at < $1
			AND id NOT IN (SELECT event_id FROM dlq)
		)
	`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to purge outbox rows: %w", err)
	}

	res, err = tx.ExecContext(ctx, `
		DELETE FROM events
		WHERE created_at < $1
		AND id NOT IN (SELECT event_id FROM dlq)
		AND id NOT IN (SELECT event_id FROM outbox WHERE published_at IS NULL)
	`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to purge events: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count purged events: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit purge tx: %w", err)
	}

	return n, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}

	return s
}
