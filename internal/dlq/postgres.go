package dlq

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukex/aob/pkg/models"
)

// PostgresDLQ implements DLQ on the same connection pool as the event
// store, per operion's table-per-concern persistence layout.
type PostgresDLQ struct {
	db *sql.DB
}

// NewPostgres wraps an existing *sql.DB (shared with the event store).
func NewPostgres(db *sql.DB) *PostgresDLQ {
	return &PostgresDLQ{db: db}
}

func (d *PostgresDLQ) Quarantine(ctx context.Context, eventID, errMsg string, quarantineTTL time.Duration) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO dlq (event_id, error, quarantine_until, manual_retries)
		VALUES ($1, $2, $3, 0)
		ON CONFLICT (event_id) DO UPDATE SET error = EXCLUDED.error, quarantine_until = EXCLUDED.quarantine_until
	`, eventID, errMsg, time.Now().Add(quarantineTTL))
	if err != nil {
		return fmt.Errorf("failed to quarantine event %s: %w", eventID, err)
	}

	return nil
}

func (d *PostgresDLQ) List(ctx context.Context, readyForRetry bool) ([]models.DLQEntry, error) {
	query := `SELECT event_id, error, quarantine_until, manual_retries FROM dlq`
	if readyForRetry {
		query += ` WHERE quarantine_until <= NOW()`
	}

	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list dlq entries: %w", err)
	}
	defer rows.Close()

	var out []models.DLQEntry

	for rows.Next() {
		var e models.DLQEntry
		if err := rows.Scan(&e.EventID, &e.Error, &e.QuarantineUntil, &e.ManualRetries); err != nil {
			return nil, fmt.Errorf("failed to scan dlq row: %w", err)
		}

		out = append(out, e)
	}

	return out, rows.Err()
}

func (d *PostgresDLQ) Requeue(ctx context.Context, eventID string) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin requeue tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		UPDATE dlq SET manual_retries = manual_retries + 1, quarantine_until = NOW() WHERE event_id = $1
	`, eventID); err != nil {
		return fmt.Errorf("failed to bump manual retry count: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE outbox SET published_at = NULL, attempts = 0, last_error = NULL WHERE event_id = $1
	`, eventID); err != nil {
		return fmt.Errorf("failed to reset outbox publication state: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM dlq WHERE event_id = $1`, eventID); err != nil {
		return fmt.Errorf("failed to clear dlq entry: %w", err)
	}

	return tx.Commit()
}

func (d *PostgresDLQ) Purge(ctx context.Context, eventID string) error {
	_, err := d.db.ExecContext(ctx, `DELETE FROM dlq WHERE event_id = $1`, eventID)
	if err != nil {
		return fmt.Errorf("failed to purge dlq entry %s: %w", eventID, err)
	}

	return nil
}

func (d *PostgresDLQ) PurgeExpired(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, `
		DELETE FROM dlq WHERE quarantine_until < $1 RETURNING event_id
	`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to purge expired dlq entries: %w", err)
	}
	defer rows.Close()

	var ids []string

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan purged dlq id: %w", err)
		}

		ids = append(ids, id)
	}

	return ids, rows.Err()
}
