package snapshot

import (
	"github.com/dukex/aob/internal/graph"
	"github.com/dukex/aob/pkg/models"
)

// Apply folds a single event into state and returns the resulting state.
// It is the one place that interprets the closed event vocabulary (§3),
// and it is used identically by the live engine step loop and by
// replay/snapshot reconstruction — this is what makes I3 (replay-from-zero
// == replay-from-snapshot) hold: both paths call the same function over
// the same events, in the same order.
//
// Apply is pure with respect to its inputs except for one external
// dependency: the compiled Graph, which supplies adjacency and AND-join
// predecessor sets that are not themselves part of the event stream. A
// correlation_id's graph is fixed at workflow.started and never changes
// afterward, so this does not break determinism.
func Apply(g *graph.Graph, state RunState, e models.Event) RunState {
	state.LastSeq = e.SequenceNumber

	switch e.Type {
	case models.EventWorkflowStarted:
		state.RunContext = models.NewRunContext(toStringMap(e.Payload["initial_bag"]))
		state.ReadySet[g.StartID] = true

	case models.EventNodeStarted:
		nodeID := toString(e.Payload["node_id"])
		state.Attempts[nodeID] = toInt(e.Payload["attempt"])

	case models.EventNodeCompleted:
		nodeID := toString(e.Payload["node_id"])
		output := toStringMap(e.Payload["output"])

		state.RunContext.Outputs[nodeID] = output
		state.Completed[nodeID] = true
		delete(state.ReadySet, nodeID)
		enqueueReadySuccessors(g, &state, nodeID)

	case models.EventNodeFailed:
		nodeID := toString(e.Payload["node_id"])
		delete(state.ReadySet, nodeID)

		if target := toString(e.Payload["reroute_to"]); target != "" && !state.Completed[target] {
			state.ReadySet[target] = true
		}

	case models.EventPolicyDenied:
		// Bookkeeping only; the workflow.failed event that always follows
		// in the same append batch carries the terminal transition.

	case models.EventHumanAwaited:
		nodeID := toString(e.Payload["node_id"])
		state.PendingHumans[nodeID] = true
		delete(state.ReadySet, nodeID)

	case models.EventHumanApproved:
		nodeID := toString(e.Payload["node_id"])
		approvalKey := toString(e.Payload["approval_key"])

		delete(state.PendingHumans, nodeID)
		state.Completed[nodeID] = true

		if approvalKey != "" {
			state.RunContext.Bag[approvalKey] = true
		}

		enqueueReadySuccessors(g, &state, nodeID)

	case models.EventHumanRejected:
		nodeID := toString(e.Payload["node_id"])
		approvalKey := toString(e.Payload["approval_key"])

		delete(state.PendingHumans, nodeID)

		if approvalKey != "" {
			state.RunContext.Bag[approvalKey] = false
		}

	case models.EventWorkflowCompleted:
		state.Done = true

	case models.EventWorkflowFailed:
		state.Done = true
		state.FailureReason = toString(e.Payload["reason"])

	case models.EventSnapshotCreated:
		// Informational only; writing the snapshot row is a side effect
		// of the engine loop, not a state transition.
	}

	return state
}

// enqueueReadySuccessors adds every successor of nodeID whose full
// predecessor set is now complete to the ready set (the AND-join test of
// §4.7.2 step 4). Compensation (on_failure) edges are never auto-enqueued
// this way; they are only taken via the explicit reroute_to payload on a
// node.failed event.
//
// Terminal nodes are scheduled through the ready set exactly like any
// other node, so that a policy tagged on the edge leading into one is
// still oracle-gated by the engine's normal step (§4.5, I8); the engine
// just settles them with a single node.completed event and no execution.
func enqueueReadySuccessors(g *graph.Graph, state *RunState, nodeID string) {
	for _, edge := range g.Successors(nodeID) {
		if edge.OnFailure() {
			continue
		}

		target := edge.To

		if state.Completed[target] || state.PendingHumans[target] {
			continue
		}

		if !g.PredecessorsCompleted(target, state.Completed) {
			continue
		}

		state.ReadySet[target] = true
	}
}

// Replay reconstructs RunState by folding every event in order, starting
// from the zero state (§4.8's "replay from zero").
func Replay(g *graph.Graph, correlationID string, events []models.Event) RunState {
	state := New(correlationID)
	for _, e := range events {
		state = Apply(g, state, e)
	}

	return state
}

// ReplayFromSnapshot seeds state from snap and folds tail (events after
// snap.UpToSequence). Callers are responsible for only passing events
// that postdate the snapshot.
func ReplayFromSnapshot(g *graph.Graph, snap models.Snapshot, tail []models.Event) RunState {
	state := FromSnapshot(snap)
	for _, e := range tail {
		state = Apply(g, state, e)
	}

	return state
}

func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}

func toString(v any) string {
	s, _ := v.(string)

	return s
}

func toStringMap(v any) map[string]any {
	m, _ := v.(map[string]any)

	return m
}
