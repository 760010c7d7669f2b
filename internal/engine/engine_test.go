package engine_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/dukex/aob/internal/audit"
	"github.com/dukex/aob/internal/engine"
	"github.com/dukex/aob/internal/graph"
	"github.com/dukex/aob/internal/lease"
	"github.com/dukex/aob/internal/oracle"
	"github.com/dukex/aob/internal/snapshot"
	"github.com/dukex/aob/internal/store/memory"
	"github.com/dukex/aob/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func taskZSpec() models.WorkflowSpec {
	return models.WorkflowSpec{
		ID: "wf-s1",
		Nodes: []models.Node{
			{ID: "A", Kind: models.NodeKindTask, Name: "A"},
			{ID: "B", Kind: models.NodeKindTask, Name: "B"},
			{ID: "Z", Kind: models.NodeKindTerminal, Name: "Z"},
		},
		Edges: []models.Edge{
			{From: "A", To: "B"},
			{From: "B", To: "Z"},
		},
	}
}

func newHarness(t *testing.T, oc oracle.Client) (*engine.Engine, *memory.Store) {
	t.Helper()

	st := memory.New()
	lm := lease.NewMemory()
	rec := audit.New(testLogger(), audit.NewMemorySink())

	return engine.New(testLogger(), st, lm, oc, rec, 0, time.Second), st
}

func eventTypes(events []models.Event) []models.EventType {
	out := make([]models.EventType, len(events))
	for i, e := range events {
		out[i] = e.Type
	}

	return out
}

// S1 — happy path, task-only.
func TestEngineHappyPathTaskOnly(t *testing.T) {
	g, err := graph.Compile(taskZSpec())
	require.NoError(t, err)

	e, st := newHarness(t, oracle.AllowAll())

	behaviors := engine.Registry{
		"A": engine.BehaviorFunc(func(_ context.Context, _ any, _ models.RunContext) (map[string]any, error) {
			return map[string]any{"ran": "A"}, nil
		}),
		"B": engine.BehaviorFunc(func(_ context.Context, _ any, _ models.RunContext) (map[string]any, error) {
			return map[string]any{"ran": "B"}, nil
		}),
	}

	correlationID, err := e.Start(context.Background(), g, behaviors, map[string]any{"x": 1})
	require.NoError(t, err)

	events := st.AllEvents(correlationID)

	assert.Equal(t, []models.EventType{
		models.EventWorkflowStarted,
		models.EventNodeStarted,
		models.EventNodeCompleted,
		models.EventNodeStarted,
		models.EventNodeCompleted,
		models.EventNodeCompleted,
		models.EventWorkflowCompleted,
	}, eventTypes(events))

	assert.Equal(t, "A", events[1].Payload["node_id"])
	assert.Equal(t, "B", events[3].Payload["node_id"])
	assert.Equal(t, "Z", events[5].Payload["node_id"])

	for i, e := range events {
		assert.Equal(t, int64(i+1), e.SequenceNumber, "dense sequencing (I1)")
	}
}

// S2 — human checkpoint, approved.
func TestEngineHumanCheckpointApproved(t *testing.T) {
	spec := models.WorkflowSpec{
		ID: "wf-s2",
		Nodes: []models.Node{
			{ID: "A", Kind: models.NodeKindTask, Name: "A"},
			{ID: "H", Kind: models.NodeKindHuman, Name: "H", ApprovalKey: "ok"},
			{ID: "Z", Kind: models.NodeKindTerminal, Name: "Z"},
		},
		Edges: []models.Edge{
			{From: "A", To: "H"},
			{From: "H", To: "Z", Policies: []string{"require_approval"}},
		},
	}

	g, err := graph.Compile(spec)
	require.NoError(t, err)

	e, st := newHarness(t, oracle.AllowAll())

	behaviors := engine.Registry{
		"A": engine.BehaviorFunc(func(_ context.Context, _ any, _ models.RunContext) (map[string]any, error) {
			return map[string]any{}, nil
		}),
	}

	correlationID, err := e.Start(context.Background(), g, behaviors, map[string]any{})
	require.NoError(t, err)

	events := st.AllEvents(correlationID)
	assert.Equal(t, []models.EventType{
		models.EventWorkflowStarted,
		models.EventNodeStarted,
		models.EventNodeCompleted,
		models.EventHumanAwaited,
	}, eventTypes(events))

	err = e.Resume(context.Background(), g, behaviors, correlationID, "H", true)
	require.NoError(t, err)

	events = st.AllEvents(correlationID)
	assert.Equal(t, []models.EventType{
		models.EventWorkflowStarted,
		models.EventNodeStarted,
		models.EventNodeCompleted,
		models.EventHumanAwaited,
		models.EventHumanApproved,
		models.EventNodeCompleted,
		models.EventWorkflowCompleted,
	}, eventTypes(events))
}

// S2 — human checkpoint, rejected.
func TestEngineHumanCheckpointRejected(t *testing.T) {
	spec := models.WorkflowSpec{
		ID: "wf-s2b",
		Nodes: []models.Node{
			{ID: "A", Kind: models.NodeKindTask, Name: "A"},
			{ID: "H", Kind: models.NodeKindHuman, Name: "H", ApprovalKey: "ok"},
			{ID: "Z", Kind: models.NodeKindTerminal, Name: "Z"},
		},
		Edges: []models.Edge{
			{From: "A", To: "H"},
			{From: "H", To: "Z"},
		},
	}

	g, err := graph.Compile(spec)
	require.NoError(t, err)

	e, st := newHarness(t, oracle.AllowAll())

	behaviors := engine.Registry{
		"A": engine.BehaviorFunc(func(_ context.Context, _ any, _ models.RunContext) (map[string]any, error) {
			return map[string]any{}, nil
		}),
	}

	correlationID, err := e.Start(context.Background(), g, behaviors, map[string]any{})
	require.NoError(t, err)

	err = e.Resume(context.Background(), g, behaviors, correlationID, "H", false)
	require.NoError(t, err)

	events := st.AllEvents(correlationID)
	last := events[len(events)-1]
	assert.Equal(t, models.EventWorkflowFailed, last.Type)
	assert.Equal(t, "human_rejected", last.Payload["reason"])
}

// S3 — policy denial on the edge into the human node; no human.awaited.
func TestEnginePolicyDenial(t *testing.T) {
	spec := models.WorkflowSpec{
		ID: "wf-s3",
		Nodes: []models.Node{
			{ID: "A", Kind: models.NodeKindTask, Name: "A"},
			{ID: "H", Kind: models.NodeKindHuman, Name: "H", ApprovalKey: "ok"},
			{ID: "Z", Kind: models.NodeKindTerminal, Name: "Z"},
		},
		Edges: []models.Edge{
			{From: "A", To: "H", Policies: []string{"gate"}},
			{From: "H", To: "Z"},
		},
	}

	g, err := graph.Compile(spec)
	require.NoError(t, err)

	e, st := newHarness(t, oracle.DenyTagged("gate"))

	behaviors := engine.Registry{
		"A": engine.BehaviorFunc(func(_ context.Context, _ any, _ models.RunContext) (map[string]any, error) {
			return map[string]any{}, nil
		}),
	}

	correlationID, err := e.Start(context.Background(), g, behaviors, map[string]any{})
	require.NoError(t, err)

	events := st.AllEvents(correlationID)
	assert.Equal(t, []models.EventType{
		models.EventWorkflowStarted,
		models.EventNodeStarted,
		models.EventNodeCompleted,
		models.EventPolicyDenied,
		models.EventWorkflowFailed,
	}, eventTypes(events))
	assert.Equal(t, "policy_denied", events[len(events)-1].Payload["reason"])
}

// S4 — retry exhaustion: fails transiently twice then succeeds.
func TestEngineRetrySucceedsAfterTransientFailures(t *testing.T) {
	spec := models.WorkflowSpec{
		ID: "wf-s4",
		Nodes: []models.Node{
			{
				ID: "A", Kind: models.NodeKindTask, Name: "A",
				Retry: models.RetryPolicy{MaxAttempts: 3, BaseDelay: 10 * time.Millisecond, MaxDelay: time.Second},
			},
			{ID: "Z", Kind: models.NodeKindTerminal, Name: "Z"},
		},
		Edges: []models.Edge{{From: "A", To: "Z"}},
	}

	g, err := graph.Compile(spec)
	require.NoError(t, err)

	e, st := newHarness(t, oracle.AllowAll())

	calls := 0
	behaviors := engine.Registry{
		"A": engine.BehaviorFunc(func(_ context.Context, _ any, _ models.RunContext) (map[string]any, error) {
			calls++
			if calls < 3 {
				return nil, engine.Transient(errors.New("temporary outage"))
			}

			return map[string]any{"ok": true}, nil
		}),
	}

	start := time.Now()

	correlationID, err := e.Start(context.Background(), g, behaviors, map[string]any{})
	require.NoError(t, err)

	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, 30*time.Millisecond, "should have slept ~10ms then ~20ms between attempts")

	events := st.AllEvents(correlationID)
	assert.Equal(t, []models.EventType{
		models.EventWorkflowStarted,
		models.EventNodeStarted,
		models.EventNodeFailed,
		models.EventNodeStarted,
		models.EventNodeFailed,
		models.EventNodeStarted,
		models.EventNodeCompleted,
		models.EventNodeCompleted, // Z settles
		models.EventWorkflowCompleted,
	}, eventTypes(events))

	assert.Equal(t, 1, events[1].Payload["attempt"])
	assert.Equal(t, 2, events[3].Payload["attempt"])
	assert.Equal(t, 3, events[5].Payload["attempt"])
	assert.Equal(t, true, events[2].Payload["transient"])
}

// Retry exhaustion with no compensation edge fails the run.
func TestEngineRetryExhaustionFailsRun(t *testing.T) {
	spec := models.WorkflowSpec{
		ID: "wf-s4b",
		Nodes: []models.Node{
			{
				ID: "A", Kind: models.NodeKindTask, Name: "A",
				Retry: models.RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
			},
			{ID: "Z", Kind: models.NodeKindTerminal, Name: "Z"},
		},
		Edges: []models.Edge{{From: "A", To: "Z"}},
	}

	g, err := graph.Compile(spec)
	require.NoError(t, err)

	e, st := newHarness(t, oracle.AllowAll())

	behaviors := engine.Registry{
		"A": engine.BehaviorFunc(func(_ context.Context, _ any, _ models.RunContext) (map[string]any, error) {
			return nil, engine.Transient(errors.New("down for good"))
		}),
	}

	correlationID, err := e.Start(context.Background(), g, behaviors, map[string]any{})
	require.NoError(t, err)

	events := st.AllEvents(correlationID)
	last := events[len(events)-1]
	assert.Equal(t, models.EventWorkflowFailed, last.Type)
	assert.Equal(t, "node_failed", last.Payload["reason"])
}

// Compensation edge reroutes instead of failing the run.
func TestEngineOnFailureReroute(t *testing.T) {
	spec := models.WorkflowSpec{
		ID: "wf-compensate",
		Nodes: []models.Node{
			{ID: "A", Kind: models.NodeKindTask, Name: "A", Retry: models.RetryPolicy{MaxAttempts: 1}},
			{ID: "C", Kind: models.NodeKindTask, Name: "compensate"},
			{ID: "Z", Kind: models.NodeKindTerminal, Name: "Z"},
		},
		Edges: []models.Edge{
			{From: "A", To: "C", Policies: []string{"on_failure"}},
			{From: "C", To: "Z"},
		},
	}

	g, err := graph.Compile(spec)
	require.NoError(t, err)

	e, st := newHarness(t, oracle.AllowAll())

	behaviors := engine.Registry{
		"A": engine.BehaviorFunc(func(_ context.Context, _ any, _ models.RunContext) (map[string]any, error) {
			return nil, errors.New("boom")
		}),
		"C": engine.BehaviorFunc(func(_ context.Context, _ any, _ models.RunContext) (map[string]any, error) {
			return map[string]any{"compensated": true}, nil
		}),
	}

	correlationID, err := e.Start(context.Background(), g, behaviors, map[string]any{})
	require.NoError(t, err)

	events := st.AllEvents(correlationID)
	last := events[len(events)-1]
	assert.Equal(t, models.EventWorkflowCompleted, last.Type)

	var sawCompensate bool
	for _, e := range events {
		if e.Type == models.EventNodeCompleted && e.Payload["node_id"] == "C" {
			sawCompensate = true
		}
	}
	assert.True(t, sawCompensate, "compensation node C should have run and completed")
}

// S5 — crash & recover: rebuild state from a snapshot plus tail events and
// resume driving the same run to completion (I3).
func TestEngineCrashAndRecoverFromSnapshot(t *testing.T) {
	g, err := graph.Compile(taskZSpec())
	require.NoError(t, err)

	st := memoryStoreForRecovery(t, g)

	loader := snapshot.NewLoader(st)
	state, _, err := loader.Load(context.Background(), g, "run-1")
	require.NoError(t, err)

	assert.True(t, state.Completed["A"])
	assert.True(t, state.ReadySet["B"], "ready_set should re-materialize to {B} per S5")
	assert.False(t, state.Completed["B"])
}

// memoryStoreForRecovery seeds a store as if the process crashed right
// after node.completed(A) was durably appended but before B started.
func memoryStoreForRecovery(t *testing.T, g *graph.Graph) *memory.Store {
	t.Helper()

	st := memory.New()
	ctx := context.Background()

	startEvt := models.Event{Type: models.EventWorkflowStarted, Payload: map[string]any{"initial_bag": map[string]any{}}}
	res, err := st.Append(ctx, "run-1", []models.Event{startEvt}, []models.OutboxEntry{{EventID: "e0"}})
	require.NoError(t, err)
	require.Len(t, res.Events, 1)

	startedA := models.Event{Type: models.EventNodeStarted, Payload: map[string]any{"node_id": "A", "attempt": 1}}
	_, err = st.Append(ctx, "run-1", []models.Event{startedA}, nil)
	require.NoError(t, err)

	completedA := models.Event{Type: models.EventNodeCompleted, Payload: map[string]any{"node_id": "A", "output": map[string]any{}}}
	_, err = st.Append(ctx, "run-1", []models.Event{completedA}, nil)
	require.NoError(t, err)

	return st
}
