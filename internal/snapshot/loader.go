package snapshot

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukex/aob/internal/graph"
	"github.com/dukex/aob/internal/store"
	"github.com/dukex/aob/pkg/models"
	"github.com/google/uuid"
)

// Loader rebuilds RunState for a correlation_id, preferring the latest
// snapshot plus its tail over a full from-zero replay (§4.8).
type Loader struct {
	store store.EventStore
}

func NewLoader(s store.EventStore) *Loader {
	return &Loader{store: s}
}

// Load returns the current RunState and the full event history loaded to
// produce it (callers that need the raw events, e.g. the Control API's
// events endpoint, can use the latter).
func (l *Loader) Load(ctx context.Context, g *graph.Graph, correlationID string) (RunState, []models.Event, error) {
	snap, err := l.store.ReadSnapshot(ctx, correlationID)
	if err != nil && !errors.Is(err, store.ErrSnapshotNotFound) {
		return RunState{}, nil, fmt.Errorf("snapshot: read snapshot: %w", err)
	}

	if errors.Is(err, store.ErrSnapshotNotFound) {
		events, loadErr := l.store.Load(ctx, correlationID, 0)
		if loadErr != nil {
			return RunState{}, nil, fmt.Errorf("snapshot: load events: %w", loadErr)
		}

		if len(events) == 0 {
			return RunState{}, nil, store.ErrSnapshotNotFound
		}

		return Replay(g, correlationID, events), events, nil
	}

	tail, err := l.store.Load(ctx, correlationID, snap.UpToSequence+1)
	if err != nil {
		return RunState{}, nil, fmt.Errorf("snapshot: load tail: %w", err)
	}

	full, err := l.store.Load(ctx, correlationID, 0)
	if err != nil {
		return RunState{}, nil, fmt.Errorf("snapshot: load full history: %w", err)
	}

	return ReplayFromSnapshot(g, snap, tail), full, nil
}

// Writer decides when to write a snapshot and persists it (§4.8's
// "snapshot every k events" policy).
type Writer struct {
	store    store.EventStore
	interval int64
}

// NewWriter returns a Writer that snapshots every interval events. An
// interval <= 0 disables automatic snapshotting (manual/never).
func NewWriter(s store.EventStore, interval int64) *Writer {
	return &Writer{store: s, interval: interval}
}

// MaybeWrite writes a snapshot if seq has crossed an interval boundary
// since the run began, returning the snapshot.created event to append
// alongside the triggering event in the same append call, or nil if no
// snapshot was due.
func (w *Writer) MaybeWrite(ctx context.Context, state RunState, seq int64) (*models.Event, error) {
	if w.interval <= 0 || seq%w.interval != 0 {
		return nil, nil
	}

	snap := state.ToSnapshot(seq)
	snap.ID = uuid.NewString()

	if err := w.store.WriteSnapshot(ctx, snap); err != nil {
		return nil, fmt.Errorf("snapshot: write: %w", err)
	}

	return &models.Event{
		Type: models.EventSnapshotCreated,
		Payload: map[string]any{
			"snapshot_id":    snap.ID,
			"up_to_sequence": seq,
		},
		IdempotencyKey: fmt.Sprintf("%s:_snapshot:created:%d", state.CorrelationID, seq),
	}, nil
}
