// Package engine implements the Execution Engine (C7, §4.7): the
// start/step/resume scheduler that drives a compiled Graph forward one
// ready node at a time, gates every edge through the Policy Oracle,
// suspends at Human checkpoints, and keeps the run's RunState in sync via
// the shared reducer in internal/snapshot.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/aob/internal/audit"
	"github.com/dukex/aob/internal/graph"
	"github.com/dukex/aob/internal/lease"
	"github.com/dukex/aob/internal/oracle"
	"github.com/dukex/aob/internal/snapshot"
	"github.com/dukex/aob/internal/store"
	"github.com/dukex/aob/pkg/models"
	"github.com/google/uuid"
)

// DefaultLeaseTTL is the lease duration renewed across the run's step loop
// (§4.4). It must comfortably exceed the time between two consecutive
// lease renewals, not the run's total duration.
const DefaultLeaseTTL = 30 * time.Second

// DefaultSnapshotInterval writes a snapshot every N appended events (§4.8).
const DefaultSnapshotInterval = 20

// Engine wires together the Event Store, Lease Manager, Policy Oracle, and
// Decision Recorder behind the start/step/resume scheduler of §4.7.
type Engine struct {
	store     store.EventStore
	lease     lease.Manager
	oracle    oracle.Client
	recorder  *audit.Recorder
	loader    *snapshot.Loader
	writer    *snapshot.Writer
	leaseTTL  time.Duration
	logger    *slog.Logger
}

// New constructs an Engine. snapshotInterval <= 0 disables automatic
// snapshotting; leaseTTL <= 0 falls back to DefaultLeaseTTL.
func New(logger *slog.Logger, st store.EventStore, lm lease.Manager, oc oracle.Client, rec *audit.Recorder, snapshotInterval int64, leaseTTL time.Duration) *Engine {
	if leaseTTL <= 0 {
		leaseTTL = DefaultLeaseTTL
	}

	return &Engine{
		store:    st,
		lease:    lm,
		oracle:   oc,
		recorder: rec,
		loader:   snapshot.NewLoader(st),
		writer:   snapshot.NewWriter(st, snapshotInterval),
		leaseTTL: leaseTTL,
		logger:   logger,
	}
}

// Start begins a new run against the compiled graph g, appending
// workflow.started and driving the scheduler until it yields or
// terminates (§4.7.2 step 1). It returns the new correlation_id.
func (e *Engine) Start(ctx context.Context, g *graph.Graph, behaviors Registry, initialBag map[string]any) (string, error) {
	correlationID := uuid.NewString()

	token, err := e.lease.Acquire(ctx, correlationID, e.leaseTTL)
	if err != nil {
		return "", fmt.Errorf("engine: acquire lease: %w", err)
	}

	state := snapshot.New(correlationID)

	startEvt := models.Event{
		Type:           models.EventWorkflowStarted,
		Payload:        map[string]any{"initial_bag": initialBag},
		IdempotencyKey: idempotencyKey(correlationID, "_workflow", "started", 1),
	}

	if err := e.appendAndApply(ctx, g, &state, []models.Event{startEvt}); err != nil {
		_ = e.lease.Release(ctx, token, correlationID)

		return "", err
	}

	e.logger.InfoContext(ctx, "run started", "correlation_id", correlationID, "graph_id", g.ID)

	if err := e.runLoop(ctx, token, g, behaviors, &state); err != nil {
		return correlationID, err
	}

	return correlationID, nil
}

// Resume is called when an external actor answers a Human checkpoint
// (§4.7.2 step 2). approved selects human.approved vs human.rejected.
func (e *Engine) Resume(ctx context.Context, g *graph.Graph, behaviors Registry, correlationID, nodeID string, approved bool) error {
	state, _, err := e.loader.Load(ctx, g, correlationID)
	if errors.Is(err, store.ErrSnapshotNotFound) {
		return ErrRunNotFound
	}

	if err != nil {
		return fmt.Errorf("engine: load run %s: %w", correlationID, err)
	}

	if state.Done {
		return ErrRunTerminal
	}

	if !state.PendingHumans[nodeID] {
		return ErrNotAwaitingApproval
	}

	node, ok := g.Nodes[nodeID]
	if !ok {
		return fmt.Errorf("engine: %w: %s", ErrRunNotFound, nodeID)
	}

	token, err := e.lease.Acquire(ctx, correlationID, e.leaseTTL)
	if err != nil {
		return fmt.Errorf("engine: acquire lease: %w", err)
	}

	evtType := models.EventHumanRejected
	if approved {
		evtType = models.EventHumanApproved
	}

	evt := models.Event{
		Type: evtType,
		Payload: map[string]any{
			"node_id":      nodeID,
			"approval_key": node.ApprovalKey,
		},
		IdempotencyKey: idempotencyKey(correlationID, nodeID, string(evtType), 1),
	}

	if err := e.appendAndApply(ctx, g, &state, []models.Event{evt}); err != nil {
		_ = e.lease.Release(ctx, token, correlationID)

		return err
	}

	e.recorder.Record(ctx, models.DecisionRecord{
		CorrelationID:   correlationID,
		NodeID:          nodeID,
		NodeName:        node.Name,
		NodeKind:        node.Kind,
		Allowed:         approved,
		PoliciesApplied: nil,
		CreatedAt:       time.Now().UTC(),
	})

	if !approved {
		if err := e.failRun(ctx, g, &state, "human_rejected", map[string]any{"node_id": nodeID}); err != nil {
			_ = e.lease.Release(ctx, token, correlationID)

			return err
		}

		_ = e.lease.Release(ctx, token, correlationID)

		return nil
	}

	return e.runLoop(ctx, token, g, behaviors, &state)
}

// runLoop drives the ready set to exhaustion, renewing the lease before
// every node step, until the run yields (empty ready set with pending
// humans or simply nothing left), terminates, or the context is
// cancelled (§4.7.2, §7 cancellation).
func (e *Engine) runLoop(ctx context.Context, token lease.Token, g *graph.Graph, behaviors Registry, state *snapshot.RunState) error {
	for !state.Done {
		if err := ctx.Err(); err != nil {
			cancelErr := e.failRun(context.WithoutCancel(ctx), g, state, "cancelled", nil)
			_ = e.lease.Release(context.WithoutCancel(ctx), token, state.CorrelationID)

			if cancelErr != nil {
				return cancelErr
			}

			return err
		}

		ready := state.SortedReady()
		if len(ready) == 0 {
			break
		}

		if err := e.renew(ctx, token, state.CorrelationID); err != nil {
			return err
		}

		if err := e.step(ctx, g, behaviors, state, ready[0]); err != nil {
			_ = e.lease.Release(ctx, token, state.CorrelationID)

			return err
		}
	}

	if state.Done {
		_ = e.lease.Release(ctx, token, state.CorrelationID)

		return nil
	}

	if len(state.PendingHumans) > 0 {
		// Suspension point: nothing left to drive until an external actor
		// calls Resume. Release the lease; there is nothing for this
		// process to hold it against.
		_ = e.lease.Release(ctx, token, state.CorrelationID)

		return nil
	}

	if e.allSinksComplete(g, state) {
		return e.completeRun(ctx, token, g, state)
	}

	_ = e.lease.Release(ctx, token, state.CorrelationID)

	return nil
}

func (e *Engine) allSinksComplete(g *graph.Graph, state *snapshot.RunState) bool {
	for _, id := range g.TerminalNodes() {
		if !state.Completed[id] {
			return false
		}
	}

	return true
}

func (e *Engine) renew(ctx context.Context, token lease.Token, correlationID string) error {
	if err := e.lease.Renew(ctx, token, correlationID, e.leaseTTL); err != nil {
		e.logger.ErrorContext(ctx, "lease lost mid-run", "correlation_id", correlationID, "error", err)

		return fmt.Errorf("engine: %w", err)
	}

	return nil
}
