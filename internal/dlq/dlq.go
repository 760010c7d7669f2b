// Package dlq implements the Dead-Letter Queue (C9, §4.9): quarantine of
// events whose publication exhausted retries, with operator-driven
// requeue and purge.
package dlq

import (
	"context"
	"time"

	"github.com/dukex/aob/pkg/models"
)

// DLQ is the operation set of §4.9.
type DLQ interface {
	Quarantine(ctx context.Context, eventID, errMsg string, quarantineTTL time.Duration) error
	List(ctx context.Context, readyForRetry bool) ([]models.DLQEntry, error)
	Requeue(ctx context.Context, eventID string) error
	Purge(ctx context.Context, eventID string) error

	// PurgeExpired removes entries whose quarantine_until is older than
	// cutoff — abandoned quarantines nobody requeued before the
	// configured DLQTTL elapsed. Returns the purged event ids.
	PurgeExpired(ctx context.Context, cutoff time.Time) ([]string, error)
}
