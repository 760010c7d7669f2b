package engine

import (
	"context"
	"time"

	"github.com/dukex/aob/internal/graph"
	"github.com/dukex/aob/internal/snapshot"
	"github.com/dukex/aob/pkg/models"
)

// step processes exactly one ready node: it gates every incoming edge
// through the Policy Oracle, then dispatches by Node.Kind (§4.7.2 step 3,
// §4.7.4 human checkpoints, §4.7.3 task/agent execution).
func (e *Engine) step(ctx context.Context, g *graph.Graph, behaviors Registry, state *snapshot.RunState, nodeID string) error {
	node := g.Nodes[nodeID]

	for _, edge := range g.Incoming(nodeID) {
		decision := e.oracle.Evaluate(ctx, edge, state.RunContext)
		if decision.Allow {
			continue
		}

		e.recorder.Record(ctx, models.DecisionRecord{
			CorrelationID:   state.CorrelationID,
			NodeID:          nodeID,
			NodeName:        node.Name,
			NodeKind:        node.Kind,
			Allowed:         false,
			PoliciesApplied: edge.Policies,
			CreatedAt:       time.Now().UTC(),
		})

		denyEvt := models.Event{
			Type: models.EventPolicyDenied,
			Payload: map[string]any{
				"node_id":   nodeID,
				"edge_from": edge.From,
				"reason":    decision.Reason,
			},
			IdempotencyKey: idempotencyKey(state.CorrelationID, nodeID, "policy_denied", 1),
		}

		if err := e.appendAndApply(ctx, g, state, []models.Event{denyEvt}); err != nil {
			return err
		}

		return e.failRun(ctx, g, state, "policy_denied", map[string]any{"node_id": nodeID, "policy_reason": decision.Reason})
	}

	switch node.Kind {
	case models.NodeKindHuman:
		return e.suspend(ctx, g, state, node)
	case models.NodeKindTerminal:
		// A sink marker: no Behavior to dispatch, so it settles with a
		// single node.completed and no node.started (§8 S1).
		return e.appendNodeCompleted(ctx, g, state, node, map[string]any{})
	default:
		return e.executeWithRetry(ctx, g, behaviors, state, node)
	}
}

func (e *Engine) suspend(ctx context.Context, g *graph.Graph, state *snapshot.RunState, node models.Node) error {
	evt := models.Event{
		Type: models.EventHumanAwaited,
		Payload: map[string]any{
			"node_id":      node.ID,
			"approval_key": node.ApprovalKey,
		},
		IdempotencyKey: idempotencyKey(state.CorrelationID, node.ID, "awaited", 1),
	}

	if err := e.appendAndApply(ctx, g, state, []models.Event{evt}); err != nil {
		return err
	}

	e.recorder.Record(ctx, models.DecisionRecord{
		CorrelationID: state.CorrelationID,
		NodeID:        node.ID,
		NodeName:      node.Name,
		NodeKind:      node.Kind,
		Allowed:       true,
		CreatedAt:     time.Now().UTC(),
	})

	return nil
}

func (e *Engine) appendNodeCompleted(ctx context.Context, g *graph.Graph, state *snapshot.RunState, node models.Node, output map[string]any) error {
	evt := models.Event{
		Type:           models.EventNodeCompleted,
		Payload:        map[string]any{"node_id": node.ID, "output": output},
		IdempotencyKey: idempotencyKey(state.CorrelationID, node.ID, "completed", 1),
	}

	if err := e.appendAndApply(ctx, g, state, []models.Event{evt}); err != nil {
		return err
	}

	e.recorder.Record(ctx, models.DecisionRecord{
		CorrelationID:  state.CorrelationID,
		NodeID:         node.ID,
		NodeName:       node.Name,
		NodeKind:       node.Kind,
		Allowed:        true,
		OutputSnapshot: output,
		CreatedAt:      time.Now().UTC(),
	})

	return nil
}

// executeWithRetry runs a Task or Agent node to completion, retrying
// transient failures with jittered exponential backoff up to the node's
// RetryPolicy (§4.7.3). A missing Behavior registration and a non-transient
// failure both end the attempt loop immediately.
func (e *Engine) executeWithRetry(ctx context.Context, g *graph.Graph, behaviors Registry, state *snapshot.RunState, node models.Node) error {
	behavior, registered := behaviors[node.ID]
	if !registered {
		return e.failNode(ctx, g, state, node, ErrNoBehavior)
	}

	var lastErr error

	for attempt := 1; attempt <= node.Retry.MaxAttempts; attempt++ {
		if delay := nextDelay(node.Retry, attempt); delay > 0 {
			timer := time.NewTimer(delay)

			select {
			case <-ctx.Done():
				timer.Stop()

				return ctx.Err()
			case <-timer.C:
			}
		}

		startEvt := models.Event{
			Type:           models.EventNodeStarted,
			Payload:        map[string]any{"node_id": node.ID, "attempt": attempt},
			IdempotencyKey: idempotencyKey(state.CorrelationID, node.ID, "started", attempt),
		}

		if err := e.appendAndApply(ctx, g, state, []models.Event{startEvt}); err != nil {
			return err
		}

		input, exprErr := g.ExprOf[node.ID].Eval(state.RunContext.Bag)
		if exprErr != nil {
			return e.failNode(ctx, g, state, node, exprErr)
		}

		attemptCtx, cancel := context.WithTimeout(ctx, node.Timeout())
		start := time.Now()
		output, err := behavior.Execute(attemptCtx, input, state.RunContext.Clone())
		latency := time.Since(start)

		cancel()

		if err == nil {
			e.recorder.Record(ctx, models.DecisionRecord{
				CorrelationID:  state.CorrelationID,
				NodeID:         node.ID,
				NodeName:       node.Name,
				NodeKind:       node.Kind,
				Allowed:        true,
				InputSnapshot:  toMap(input),
				OutputSnapshot: output,
				LatencyMS:      latency.Milliseconds(),
				CreatedAt:      time.Now().UTC(),
			})

			return e.appendNodeCompleted(ctx, g, state, node, output)
		}

		lastErr = err
		transient := IsTransient(err)
		exhausted := attempt == node.Retry.MaxAttempts

		failedEvt := models.Event{
			Type: models.EventNodeFailed,
			Payload: map[string]any{
				"node_id":   node.ID,
				"attempt":   attempt,
				"transient": transient,
				"error":     err.Error(),
			},
			IdempotencyKey: idempotencyKey(state.CorrelationID, node.ID, "failed", attempt),
		}

		if !transient || exhausted {
			if reroute := onFailureEdge(g, node.ID); reroute != nil {
				failedEvt.Payload["reroute_to"] = reroute.To
			}
		}

		if appendErr := e.appendAndApply(ctx, g, state, []models.Event{failedEvt}); appendErr != nil {
			return appendErr
		}

		e.recorder.Record(ctx, models.DecisionRecord{
			CorrelationID: state.CorrelationID,
			NodeID:        node.ID,
			NodeName:      node.Name,
			NodeKind:      node.Kind,
			Allowed:       true,
			LatencyMS:     latency.Milliseconds(),
			CreatedAt:     time.Now().UTC(),
		})

		if !transient {
			break
		}
	}

	if reroute := onFailureEdge(g, node.ID); reroute != nil {
		// Already rerouted via the node.failed payload above; the
		// scheduler will pick up reroute.To on its next pass.
		return nil
	}

	return e.failRun(ctx, g, state, "node_failed", map[string]any{"node_id": node.ID, "error": lastErr.Error()})
}

// failNode records a permanent, pre-execution failure (no Behavior
// registered, or an expr projection error) as a single node.failed event
// before falling through to the same reroute-or-fail-run logic used by
// exhausted retries.
func (e *Engine) failNode(ctx context.Context, g *graph.Graph, state *snapshot.RunState, node models.Node, cause error) error {
	evt := models.Event{
		Type: models.EventNodeFailed,
		Payload: map[string]any{
			"node_id":   node.ID,
			"attempt":   0,
			"transient": false,
			"error":     cause.Error(),
		},
		IdempotencyKey: idempotencyKey(state.CorrelationID, node.ID, "failed", 0),
	}

	if reroute := onFailureEdge(g, node.ID); reroute != nil {
		evt.Payload["reroute_to"] = reroute.To
	}

	if err := e.appendAndApply(ctx, g, state, []models.Event{evt}); err != nil {
		return err
	}

	if onFailureEdge(g, node.ID) != nil {
		return nil
	}

	return e.failRun(ctx, g, state, "node_failed", map[string]any{"node_id": node.ID, "error": cause.Error()})
}

func toMap(v any) map[string]any {
	m, _ := v.(map[string]any)

	return m
}
