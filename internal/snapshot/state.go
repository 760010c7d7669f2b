// Package snapshot implements the pure event-to-state reducer (C8, §4.8)
// shared by the live execution engine and by replay/audit tooling, plus
// the snapshot writer/reader that lets a run resume without folding its
// entire history on every restart.
package snapshot

import (
	"github.com/dukex/aob/internal/graph"
	"github.com/dukex/aob/pkg/models"
)

// RunState is the full in-memory projection of a run's event history: the
// same shape results whether it was built by folding every event from
// zero or by loading a snapshot and folding only the tail (I3).
type RunState struct {
	CorrelationID string
	RunContext    models.RunContext
	ReadySet      map[string]bool
	PendingHumans map[string]bool
	Completed     map[string]bool
	Attempts      map[string]int
	LastSeq       int64
	Done          bool
	FailureReason string
}

// New returns the zero-value state for a fresh correlation_id.
func New(correlationID string) RunState {
	return RunState{
		CorrelationID: correlationID,
		RunContext:    models.NewRunContext(nil),
		ReadySet:      make(map[string]bool),
		PendingHumans: make(map[string]bool),
		Completed:     make(map[string]bool),
		Attempts:      make(map[string]int),
	}
}

// SortedReady returns the ready set's node ids in the deterministic
// scheduling order of §4.7.2 (ascending node id).
func (s RunState) SortedReady() []string {
	ids := make([]string, 0, len(s.ReadySet))
	for id := range s.ReadySet {
		ids = append(ids, id)
	}

	return graph.SortNodeIDsDeterministic(ids)
}

// ToSnapshot captures this state as a storable Snapshot at sequence upTo.
func (s RunState) ToSnapshot(upTo int64) models.Snapshot {
	ready := make([]string, 0, len(s.ReadySet))
	for id := range s.ReadySet {
		ready = append(ready, id)
	}

	pending := make([]string, 0, len(s.PendingHumans))
	for id := range s.PendingHumans {
		pending = append(pending, id)
	}

	completed := make([]string, 0, len(s.Completed))
	for id := range s.Completed {
		completed = append(completed, id)
	}

	return models.Snapshot{
		CorrelationID: s.CorrelationID,
		UpToSequence:  upTo,
		RunContext:    s.RunContext.Clone(),
		ReadySet:      graph.SortNodeIDsDeterministic(ready),
		PendingHumans: graph.SortNodeIDsDeterministic(pending),
		Completed:     graph.SortNodeIDsDeterministic(completed),
	}
}

// FromSnapshot seeds a RunState from a stored Snapshot. Completed and
// Attempts are not part of the snapshot payload; they are rebuilt by
// folding the events after snap.UpToSequence over the returned state.
func FromSnapshot(snap models.Snapshot) RunState {
	s := New(snap.CorrelationID)
	s.RunContext = snap.RunContext.Clone()
	s.LastSeq = snap.UpToSequence

	for _, id := range snap.ReadySet {
		s.ReadySet[id] = true
	}

	for _, id := range snap.PendingHumans {
		s.PendingHumans[id] = true
	}

	for _, id := range snap.Completed {
		s.Completed[id] = true
	}

	return s
}
