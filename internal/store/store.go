// Package store defines the Event Store adapter contract (C2, §4.2): an
// append-only log partitioned by correlation_id plus a snapshot table and
// an outbox table, all mutated transactionally by append.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/dukex/aob/pkg/models"
)

// ErrSequenceConflict is returned by Append when an event would violate
// the dense-sequence invariant (§3, §4.2).
var ErrSequenceConflict = errors.New("store: sequence_conflict")

// ErrSnapshotNotFound is returned by ReadSnapshot when no snapshot exists.
var ErrSnapshotNotFound = errors.New("store: snapshot not found")

// AppendResult reports the sequence numbers assigned to an Append call, or,
// for events whose idempotency key already existed, the pre-existing event.
type AppendResult struct {
	Events    []models.Event
	Conflicts map[string]models.Event // idempotency_key -> pre-existing event
}

// EventStore is the persistence abstraction the engine (C7) is built
// against (§4.2). Implementations must serialize Append per correlation_id.
type EventStore interface {
	// Append writes events and their outbox entries atomically. Idempotency
	// keys that already exist are not re-written; the existing event is
	// returned in the result rather than an error.
	Append(ctx context.Context, correlationID string, events []models.Event, outbox []models.OutboxEntry) (AppendResult, error)

	// Load returns events for a run in sequence order, starting at fromSeq
	// (inclusive) when provided, else from the beginning.
	Load(ctx context.Context, correlationID string, fromSeq int64) ([]models.Event, error)

	WriteSnapshot(ctx context.Context, snap models.Snapshot) error
	ReadSnapshot(ctx context.Context, correlationID string) (models.Snapshot, error)
	ListSnapshots(ctx context.Context, correlationID string) ([]models.Snapshot, error)

	ScanOutbox(ctx context.Context, limit int, afterCursor string) ([]models.OutboxEntry, string, error)
	MarkPublished(ctx context.Context, ids []string) error

	// MarkPublishFailed records a failed publish attempt against an
	// outbox row (bumping attempts, recording the error) without marking
	// it published, so the next ScanOutbox call picks it up again.
	MarkPublishFailed(ctx context.Context, eventID, errMsg string) error

	// NextSequence returns the next sequence number that would be assigned
	// for correlationID, used by the engine to size idempotency keys
	// without a redundant round trip in the common case.
	NextSequence(ctx context.Context, correlationID string) (int64, error)

	// PurgeSnapshots deletes snapshot rows older than olderThan, always
	// keeping each run's most recent snapshot regardless of age (a run
	// must remain replayable without a full from-zero scan).
	PurgeSnapshots(ctx context.Context, olderThan time.Time) (int64, error)

	// PurgeEvents deletes events (and their now-orphaned outbox rows)
	// older than olderThan whose outbox entry has already published —
	// an unpublished event is never eligible, regardless of age.
	PurgeEvents(ctx context.Context, olderThan time.Time) (int64, error)
}
