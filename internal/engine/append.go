package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/dukex/aob/internal/graph"
	"github.com/dukex/aob/internal/lease"
	"github.com/dukex/aob/internal/snapshot"
	"github.com/dukex/aob/pkg/models"
	"github.com/google/uuid"
)

// appendAndApply stamps, persists, and folds events into state, one
// transactional append call per invocation (§4.2). It then checks whether
// a snapshot is due and, if so, writes it and folds the resulting
// snapshot.created event too (§4.8).
func (e *Engine) appendAndApply(ctx context.Context, g *graph.Graph, state *snapshot.RunState, events []models.Event) error {
	now := time.Now().UTC()

	for i := range events {
		events[i].ID = uuid.NewString()
		events[i].CorrelationID = state.CorrelationID
		events[i].CreatedAt = now
	}

	outbox := make([]models.OutboxEntry, len(events))
	for i, ev := range events {
		outbox[i] = models.OutboxEntry{
			EventID:        ev.ID,
			CorrelationID:  ev.CorrelationID,
			Type:           ev.Type,
			Payload:        ev.Payload,
			IdempotencyKey: ev.IdempotencyKey,
		}
	}

	result, err := e.store.Append(ctx, state.CorrelationID, events, outbox)
	if err != nil {
		return fmt.Errorf("engine: append: %w", err)
	}

	for _, ev := range result.Events {
		*state = snapshot.Apply(g, *state, ev)
	}

	if len(result.Events) == 0 {
		return nil
	}

	return e.maybeSnapshot(ctx, g, state)
}

func (e *Engine) maybeSnapshot(ctx context.Context, g *graph.Graph, state *snapshot.RunState) error {
	snapEvt, err := e.writer.MaybeWrite(ctx, *state, state.LastSeq)
	if err != nil {
		e.logger.ErrorContext(ctx, "snapshot write failed, continuing without it", "correlation_id", state.CorrelationID, "error", err)

		return nil
	}

	if snapEvt == nil {
		return nil
	}

	snapEvt.ID = uuid.NewString()
	snapEvt.CorrelationID = state.CorrelationID
	snapEvt.CreatedAt = time.Now().UTC()

	result, err := e.store.Append(ctx, state.CorrelationID, []models.Event{*snapEvt}, []models.OutboxEntry{{
		EventID:        snapEvt.ID,
		CorrelationID:  snapEvt.CorrelationID,
		Type:           snapEvt.Type,
		Payload:        snapEvt.Payload,
		IdempotencyKey: snapEvt.IdempotencyKey,
	}})
	if err != nil {
		return fmt.Errorf("engine: append snapshot.created: %w", err)
	}

	for _, ev := range result.Events {
		*state = snapshot.Apply(g, *state, ev)
	}

	return nil
}

// onFailureEdge returns the compensation edge out of nodeID, if any
// (Open Question 2 in SPEC_FULL.md: on_failure edges reroute instead of
// rolling back).
func onFailureEdge(g *graph.Graph, nodeID string) *models.Edge {
	for _, edge := range g.Successors(nodeID) {
		if edge.OnFailure() {
			e := edge

			return &e
		}
	}

	return nil
}

func (e *Engine) failRun(ctx context.Context, g *graph.Graph, state *snapshot.RunState, reason string, extra map[string]any) error {
	payload := map[string]any{"reason": reason}
	for k, v := range extra {
		payload[k] = v
	}

	evt := models.Event{
		Type:           models.EventWorkflowFailed,
		Payload:        payload,
		IdempotencyKey: idempotencyKey(state.CorrelationID, "_workflow", "failed", 1),
	}

	if err := e.appendAndApply(ctx, g, state, []models.Event{evt}); err != nil {
		return err
	}

	e.logger.WarnContext(ctx, "run failed", "correlation_id", state.CorrelationID, "reason", reason)

	return nil
}

func (e *Engine) completeRun(ctx context.Context, token lease.Token, g *graph.Graph, state *snapshot.RunState) error {
	evt := models.Event{
		Type:           models.EventWorkflowCompleted,
		Payload:        map[string]any{},
		IdempotencyKey: idempotencyKey(state.CorrelationID, "_workflow", "completed", 1),
	}

	if err := e.appendAndApply(ctx, g, state, []models.Event{evt}); err != nil {
		_ = e.lease.Release(ctx, token, state.CorrelationID)

		return err
	}

	e.logger.InfoContext(ctx, "run completed", "correlation_id", state.CorrelationID)

	return e.lease.Release(ctx, token, state.CorrelationID)
}
