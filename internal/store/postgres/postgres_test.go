package postgres_test

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/dukex/aob/internal/store"
	"github.com/dukex/aob/internal/store/postgres"
	"github.com/dukex/aob/pkg/models"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	pgcontainer "github.com/testcontainers/testcontainers-go/modules/postgres"
)

var pgc *pgcontainer.PostgresContainer

func dropAll(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	for _, table := range []string{"runs", "workflow_specs", "dlq", "snapshots", "outbox", "events", "schema_migrations"} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	require.NoError(t, db.Close())
}

func setupStore(t *testing.T) (*postgres.Store, context.Context) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if pgc == nil || !pgc.IsRunning() {
		var err error

		pgc, err = pgcontainer.Run(ctx,
			"postgres:16-alpine",
			pgcontainer.WithDatabase("aob_test"),
			pgcontainer.WithUsername("aob"),
			pgcontainer.WithPassword("aob"),
			pgcontainer.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := pgc.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropAll(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	st, err := postgres.New(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		dropAll(ctx, t, databaseURL)
		require.NoError(t, st.Close())
		cancel()
	})

	return st, ctx
}

// TestAppend_DistinctEmptyKeyEventsAreNotDeduped reproduces the two-Task-node
// run from §4.7.5: node.completed events carry no per-event idempotency key
// on their own, but the engine derives a real one for every event type, so
// two such events in the same correlation_id must both persist.
func TestAppend_DistinctEmptyKeyEventsAreNotDeduped(t *testing.T) {
	st, ctx := setupStore(t)

	correlationID := "run-1"

	first := models.Event{
		ID:             "evt-a",
		Type:           models.EventNodeCompleted,
		Payload:        map[string]any{"node_id": "A"},
		IdempotencyKey: correlationID + ":A:completed:1",
	}
	second := models.Event{
		ID:             "evt-b",
		Type:           models.EventNodeCompleted,
		Payload:        map[string]any{"node_id": "B"},
		IdempotencyKey: correlationID + ":B:completed:1",
	}

	_, err := st.Append(ctx, correlationID, []models.Event{first}, nil)
	require.NoError(t, err)

	result, err := st.Append(ctx, correlationID, []models.Event{second}, nil)
	require.NoError(t, err)
	require.Len(t, result.Events, 1, "second node's completion must not be treated as a duplicate of the first")
	assert.Empty(t, result.Conflicts)

	loaded, err := st.Load(ctx, correlationID, 0)
	require.NoError(t, err)
	require.Len(t, loaded, 2, "both node.completed events must be persisted")
}

// TestAppend_SameIdempotencyKeyIsDeduped exercises the intended dedup path:
// a retried append with a real, repeated idempotency key is a no-op that
// returns the pre-existing event instead of inserting a second row.
func TestAppend_SameIdempotencyKeyIsDeduped(t *testing.T) {
	st, ctx := setupStore(t)

	correlationID := "run-2"

	evt := models.Event{
		ID:             "evt-start",
		Type:           models.EventWorkflowStarted,
		Payload:        map[string]any{},
		IdempotencyKey: correlationID + ":_workflow:started:1",
	}

	first, err := st.Append(ctx, correlationID, []models.Event{evt}, nil)
	require.NoError(t, err)
	require.Len(t, first.Events, 1)

	retry := models.Event{
		ID:             "evt-start-retry",
		Type:           models.EventWorkflowStarted,
		Payload:        map[string]any{},
		IdempotencyKey: correlationID + ":_workflow:started:1",
	}

	second, err := st.Append(ctx, correlationID, []models.Event{retry}, nil)
	require.NoError(t, err)
	assert.Empty(t, second.Events)
	require.Contains(t, second.Conflicts, retry.IdempotencyKey)
	assert.Equal(t, first.Events[0].ID, second.Conflicts[retry.IdempotencyKey].ID)

	loaded, err := st.Load(ctx, correlationID, 0)
	require.NoError(t, err)
	require.Len(t, loaded, 1, "the retried append must not duplicate the row")
}

func TestAppend_SequenceConflictAfterTerminalEvent(t *testing.T) {
	st, ctx := setupStore(t)

	correlationID := "run-3"

	done := models.Event{
		ID:             "evt-done",
		Type:           models.EventWorkflowCompleted,
		Payload:        map[string]any{},
		IdempotencyKey: correlationID + ":_workflow:completed:1",
	}

	_, err := st.Append(ctx, correlationID, []models.Event{done}, nil)
	require.NoError(t, err)

	late := models.Event{
		ID:             "evt-late",
		Type:           models.EventNodeCompleted,
		Payload:        map[string]any{"node_id": "C"},
		IdempotencyKey: correlationID + ":C:completed:1",
	}

	_, err = st.Append(ctx, correlationID, []models.Event{late}, nil)
	require.ErrorIs(t, err, store.ErrSequenceConflict)
}

func TestStore_HealthCheck(t *testing.T) {
	st, ctx := setupStore(t)

	assert.NoError(t, st.HealthCheck(ctx))
}
