package api

import (
	"errors"
	"fmt"
	"sort"

	"github.com/dukex/aob/internal/graph"
	"github.com/dukex/aob/internal/otelhelper"
	"github.com/dukex/aob/internal/snapshot"
	"github.com/dukex/aob/internal/store"
	"github.com/dukex/aob/pkg/models"
	"github.com/gofiber/fiber/v3"
	"go.opentelemetry.io/otel/attribute"
)

// StartRun compiles the workflow named by the :id URL param and starts a
// new run against it (§4.7.2 step 1), recording the run's workflow_id so
// a later Resume can recompile the same graph.
func (a *API) StartRun(c fiber.Ctx) error {
	workflowID := c.Params("id")

	var req StartRunRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "invalid JSON body")
	}

	ctx, span := otelhelper.StartSpan(c.Context(), a.tracer, "aob.run.start",
		attribute.String(otelhelper.WorkflowIDKey, workflowID))
	defer span.End()

	spec, err := a.specs.Get(ctx, workflowID)
	if err != nil {
		otelhelper.SetError(span, err)

		return handleEngineError(c, err)
	}

	g, err := graph.Compile(spec)
	if err != nil {
		otelhelper.SetError(span, err)

		return handleEngineError(c, err)
	}

	correlationID, err := a.engine.Start(ctx, g, a.behaviors, req.InitialBag)
	if err != nil {
		otelhelper.SetError(span, err)

		return handleEngineError(c, err)
	}

	span.SetAttributes(attribute.String(otelhelper.CorrelationIDKey, correlationID))

	if err := a.runs.Save(ctx, correlationID, workflowID); err != nil {
		otelhelper.SetError(span, err)

		return internalError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"correlation_id": correlationID,
	})
}

// ResumeRun answers a pending Human checkpoint (§4.7.2 step 2).
func (a *API) ResumeRun(c fiber.Ctx) error {
	correlationID := c.Params("id")

	var req ResumeRunRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "invalid JSON body")
	}

	if err := a.validate.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	ctx, span := otelhelper.StartSpan(c.Context(), a.tracer, "aob.run.resume",
		attribute.String(otelhelper.CorrelationIDKey, correlationID),
		attribute.String(otelhelper.NodeIDKey, req.NodeID))
	defer span.End()

	g, err := a.loadGraph(c, correlationID)
	if err != nil {
		otelhelper.SetError(span, err)

		return handleEngineError(c, err)
	}

	if err := a.engine.Resume(ctx, g, a.behaviors, correlationID, req.NodeID, req.Approved); err != nil {
		otelhelper.SetError(span, err)

		return handleEngineError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// GetEvents returns the full, ordered event history of a run (§4.2), the
// audit trail's raw source of truth.
func (a *API) GetEvents(c fiber.Ctx) error {
	correlationID := c.Params("id")

	events, err := a.store.Load(c.Context(), correlationID, 0)
	if err != nil {
		return internalError(c, err)
	}

	if len(events) == 0 {
		return notFound(c, "run not found")
	}

	return c.JSON(events)
}

// GetSnapshot returns the latest persisted snapshot of a run (§4.8), or
// JSON null when none has been written.
func (a *API) GetSnapshot(c fiber.Ctx) error {
	correlationID := c.Params("id")

	snap, err := a.store.ReadSnapshot(c.Context(), correlationID)
	if errors.Is(err, store.ErrSnapshotNotFound) {
		return c.JSON(nil)
	}

	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(snap)
}

// ListSnapshots returns the snapshot ids persisted for a run, oldest first
// (§6 Control API: list_snapshots(correlation_id) -> [snapshot_id]).
func (a *API) ListSnapshots(c fiber.Ctx) error {
	correlationID := c.Params("id")

	snaps, err := a.store.ListSnapshots(c.Context(), correlationID)
	if err != nil {
		return internalError(c, err)
	}

	ids := make([]string, 0, len(snaps))
	for _, s := range snaps {
		ids = append(ids, s.ID)
	}

	return c.JSON(fiber.Map{"snapshot_ids": ids})
}

// GetReplay reconstructs run state from its compiled graph and event
// history. With a ?snapshot_id query param it implements §4.8's
// replay(correlation_id, snapshot_id) contract: state is folded only
// through that snapshot's up_to_sequence and halts there, ignoring any
// events appended after it. Without one, it replays the full event log
// from zero, a debugging/audit view of the run's current state.
func (a *API) GetReplay(c fiber.Ctx) error {
	correlationID := c.Params("id")
	snapshotID := c.Query("snapshot_id")

	g, err := a.loadGraph(c, correlationID)
	if err != nil {
		return handleEngineError(c, err)
	}

	events, err := a.store.Load(c.Context(), correlationID, 0)
	if err != nil {
		return internalError(c, err)
	}

	if len(events) == 0 {
		return notFound(c, "run not found")
	}

	if snapshotID != "" {
		upToSeq, err := a.snapshotSequence(c, correlationID, snapshotID)
		if err != nil {
			return handleEngineError(c, err)
		}

		halted := make([]models.Event, 0, len(events))

		for _, e := range events {
			if e.SequenceNumber > upToSeq {
				break
			}

			halted = append(halted, e)
		}

		events = halted
	}

	state := snapshot.Replay(g, correlationID, events)

	return c.JSON(runStateResponse(state))
}

// snapshotSequence resolves a snapshot_id to the sequence it was taken at,
// the boundary replay halts at.
func (a *API) snapshotSequence(c fiber.Ctx, correlationID, snapshotID string) (int64, error) {
	snaps, err := a.store.ListSnapshots(c.Context(), correlationID)
	if err != nil {
		return 0, err
	}

	for _, s := range snaps {
		if s.ID == snapshotID {
			return s.UpToSequence, nil
		}
	}

	return 0, fmt.Errorf("%w: snapshot %s", ErrSnapshotNotFound, snapshotID)
}

// loadGraph recompiles the Graph a run was started against, via the
// run index + spec repository (§4.1), so handlers never need the caller
// to resubmit the workflow definition.
func (a *API) loadGraph(c fiber.Ctx, correlationID string) (*graph.Graph, error) {
	workflowID, err := a.runs.WorkflowID(c.Context(), correlationID)
	if err != nil {
		return nil, err
	}

	spec, err := a.specs.Get(c.Context(), workflowID)
	if err != nil {
		return nil, err
	}

	return graph.Compile(spec)
}

func runStateResponse(s snapshot.RunState) RunStateResponse {
	return RunStateResponse{
		CorrelationID: s.CorrelationID,
		RunContext:    s.RunContext,
		ReadySet:      sortedKeys(s.ReadySet),
		PendingHumans: sortedKeys(s.PendingHumans),
		Completed:     sortedKeys(s.Completed),
		Attempts:      s.Attempts,
		LastSeq:       s.LastSeq,
		Done:          s.Done,
		FailureReason: s.FailureReason,
	}
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}

	sort.Strings(out)

	return out
}
