package retention_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/dukex/aob/internal/dlq"
	"github.com/dukex/aob/internal/retention"
	"github.com/dukex/aob/internal/store/memory"
	"github.com/dukex/aob/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSweepPurgesExpiredDLQEntries(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	d := dlq.NewMemory()

	require.NoError(t, d.Quarantine(ctx, "evt-old", "boom", -time.Hour))
	require.NoError(t, d.Quarantine(ctx, "evt-fresh", "boom", time.Hour))

	s := retention.New(testLogger(), st, d, retention.Policy{DLQTTL: time.Minute}, "0 3 * * *")
	s.Sweep(ctx)

	entries, err := d.List(ctx, false)
	require.NoError(t, err)

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.EventID)
	}

	assert.NotContains(t, ids, "evt-old")
	assert.Contains(t, ids, "evt-fresh")
}

func TestSweepKeepsLatestSnapshotPerRun(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	d := dlq.NewMemory()

	old := models.Snapshot{ID: "s1", CorrelationID: "run-1", UpToSequence: 1, CreatedAt: time.Now().Add(-48 * time.Hour)}
	recent := models.Snapshot{ID: "s2", CorrelationID: "run-1", UpToSequence: 2, CreatedAt: time.Now()}

	require.NoError(t, st.WriteSnapshot(ctx, old))
	require.NoError(t, st.WriteSnapshot(ctx, recent))

	s := retention.New(testLogger(), st, d, retention.Policy{SnapshotTTL: time.Hour}, "0 3 * * *")
	s.Sweep(ctx)

	snaps, err := st.ListSnapshots(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, "s2", snaps[0].ID)
}

func TestSweepNoopWhenPolicyZero(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	d := dlq.NewMemory()

	require.NoError(t, d.Quarantine(ctx, "evt-1", "boom", -time.Hour))

	s := retention.New(testLogger(), st, d, retention.Policy{}, "0 3 * * *")
	s.Sweep(ctx)

	entries, err := d.List(ctx, false)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
