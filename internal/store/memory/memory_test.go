package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/dukex/aob/internal/store"
	"github.com/dukex/aob/internal/store/memory"
	"github.com/dukex/aob/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ev(cid string, typ models.EventType, idemKey string) models.Event {
	return models.Event{
		ID:             idemKey + "-id",
		CorrelationID:  cid,
		Type:           typ,
		Payload:        map[string]any{},
		IdempotencyKey: idemKey,
		CreatedAt:      time.Now(),
	}
}

func TestAppendDenseSequencing(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	_, err := s.Append(ctx, "run-1", []models.Event{ev("run-1", models.EventWorkflowStarted, "k1")}, nil)
	require.NoError(t, err)

	_, err = s.Append(ctx, "run-1", []models.Event{ev("run-1", models.EventNodeStarted, "k2")}, nil)
	require.NoError(t, err)

	events := s.AllEvents("run-1")
	require.Len(t, events, 2)
	assert.Equal(t, int64(1), events[0].SequenceNumber)
	assert.Equal(t, int64(2), events[1].SequenceNumber)
}

func TestAppendIdempotent(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	e := ev("run-1", models.EventWorkflowStarted, "k1")

	res1, err := s.Append(ctx, "run-1", []models.Event{e}, nil)
	require.NoError(t, err)
	require.Len(t, res1.Events, 1)

	res2, err := s.Append(ctx, "run-1", []models.Event{e}, nil)
	require.NoError(t, err)
	assert.Empty(t, res2.Events)
	assert.Contains(t, res2.Conflicts, "k1")

	assert.Len(t, s.AllEvents("run-1"), 1)
}

func TestAppendAfterTerminalRejected(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	_, err := s.Append(ctx, "run-1", []models.Event{ev("run-1", models.EventWorkflowCompleted, "k1")}, nil)
	require.NoError(t, err)

	_, err = s.Append(ctx, "run-1", []models.Event{ev("run-1", models.EventNodeStarted, "k2")}, nil)
	require.ErrorIs(t, err, store.ErrSequenceConflict)
}

func TestOutboxScanAndMarkPublished(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	e := ev("run-1", models.EventWorkflowStarted, "k1")
	_, err := s.Append(ctx, "run-1", []models.Event{e}, []models.OutboxEntry{{EventID: e.ID}})
	require.NoError(t, err)

	entries, cursor, err := s.ScanOutbox(ctx, 10, "")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.NotEmpty(t, cursor)

	require.NoError(t, s.MarkPublished(ctx, []string{e.ID}))

	entries, _, err = s.ScanOutbox(ctx, 10, "")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSnapshotReadWrite(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	_, err := s.ReadSnapshot(ctx, "run-1")
	require.ErrorIs(t, err, store.ErrSnapshotNotFound)

	snap := models.Snapshot{CorrelationID: "run-1", UpToSequence: 3}
	require.NoError(t, s.WriteSnapshot(ctx, snap))

	got, err := s.ReadSnapshot(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.UpToSequence)
}
