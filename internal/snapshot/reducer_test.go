package snapshot_test

import (
	"testing"

	"github.com/dukex/aob/internal/graph"
	"github.com/dukex/aob/internal/snapshot"
	"github.com/dukex/aob/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testGraph(t *testing.T) *graph.Graph {
	t.Helper()

	g, err := graph.Compile(models.WorkflowSpec{
		ID: "wf",
		Nodes: []models.Node{
			{ID: "A", Kind: models.NodeKindTask, Name: "A"},
			{ID: "B", Kind: models.NodeKindTask, Name: "B"},
			{ID: "C", Kind: models.NodeKindTask, Name: "C"},
			{ID: "Z", Kind: models.NodeKindTerminal, Name: "Z"},
		},
		Edges: []models.Edge{
			{From: "A", To: "B"},
			{From: "A", To: "C"},
			{From: "B", To: "Z"},
			{From: "C", To: "Z"},
		},
	})
	require.NoError(t, err)

	return g
}

func sampleEvents() []models.Event {
	seq := int64(0)
	next := func(t models.EventType, payload map[string]any) models.Event {
		seq++
		return models.Event{SequenceNumber: seq, Type: t, Payload: payload}
	}

	return []models.Event{
		next(models.EventWorkflowStarted, map[string]any{"initial_bag": map[string]any{"x": 1}}),
		next(models.EventNodeStarted, map[string]any{"node_id": "A", "attempt": 1}),
		next(models.EventNodeCompleted, map[string]any{"node_id": "A", "output": map[string]any{}}),
		next(models.EventNodeStarted, map[string]any{"node_id": "B", "attempt": 1}),
		next(models.EventNodeCompleted, map[string]any{"node_id": "B", "output": map[string]any{}}),
		next(models.EventNodeStarted, map[string]any{"node_id": "C", "attempt": 1}),
		next(models.EventNodeCompleted, map[string]any{"node_id": "C", "output": map[string]any{}}),
		next(models.EventNodeCompleted, map[string]any{"node_id": "Z", "output": map[string]any{}}),
		next(models.EventWorkflowCompleted, nil),
	}
}

// I3: replaying from zero and replaying from a mid-stream snapshot plus
// its tail must produce the same terminal state.
func TestReplayFromSnapshotMatchesReplayFromZero(t *testing.T) {
	g := testGraph(t)
	events := sampleEvents()

	fromZero := snapshot.Replay(g, "run-1", events)

	// Take a snapshot as of after B completes (sequence 5), mid-join: C has
	// not finished yet, so Z must not be ready in the snapshot itself.
	mid := snapshot.Replay(g, "run-1", events[:5])
	snap := mid.ToSnapshot(5)

	var tail []models.Event
	for _, e := range events {
		if e.SequenceNumber > 5 {
			tail = append(tail, e)
		}
	}

	fromSnapshot := snapshot.ReplayFromSnapshot(g, snap, tail)

	assert.Equal(t, fromZero.Completed, fromSnapshot.Completed)
	assert.Equal(t, fromZero.ReadySet, fromSnapshot.ReadySet)
	assert.Equal(t, fromZero.Done, fromSnapshot.Done)
	assert.Equal(t, fromZero.RunContext, fromSnapshot.RunContext)
}

func TestEnqueueReadySuccessorsRequiresAndJoin(t *testing.T) {
	g := testGraph(t)

	state := snapshot.New("run-2")
	state = snapshot.Apply(g, state, models.Event{SequenceNumber: 1, Type: models.EventWorkflowStarted, Payload: map[string]any{"initial_bag": map[string]any{}}})
	state = snapshot.Apply(g, state, models.Event{SequenceNumber: 2, Type: models.EventNodeCompleted, Payload: map[string]any{"node_id": "A", "output": map[string]any{}}})

	assert.True(t, state.ReadySet["B"])
	assert.True(t, state.ReadySet["C"])

	state = snapshot.Apply(g, state, models.Event{SequenceNumber: 3, Type: models.EventNodeCompleted, Payload: map[string]any{"node_id": "B", "output": map[string]any{}}})

	// Z needs both B and C complete; only B has finished so far.
	assert.False(t, state.ReadySet["Z"])

	state = snapshot.Apply(g, state, models.Event{SequenceNumber: 4, Type: models.EventNodeCompleted, Payload: map[string]any{"node_id": "C", "output": map[string]any{}}})

	assert.True(t, state.ReadySet["Z"])
}
