// Package memory provides an in-memory EventStore used by tests and local
// development, mirroring the simplicity of operion's file-backed
// persistence adapter (pkg/persistence/file) but scoped to the append/
// snapshot/outbox contract of store.EventStore.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dukex/aob/internal/store"
	"github.com/dukex/aob/pkg/models"
)

type runLog struct {
	events      []models.Event
	byIdemKey   map[string]models.Event
	snapshots   []models.Snapshot
}

// Store is a goroutine-safe, process-local EventStore.
type Store struct {
	mu      sync.Mutex
	runs    map[string]*runLog
	outbox  map[string]*models.OutboxEntry
	order   []string // event ids, append order, global outbox scan order
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{
		runs:   make(map[string]*runLog),
		outbox: make(map[string]*models.OutboxEntry),
	}
}

func (s *Store) runFor(correlationID string) *runLog {
	r, ok := s.runs[correlationID]
	if !ok {
		r = &runLog{byIdemKey: make(map[string]models.Event)}
		s.runs[correlationID] = r
	}

	return r
}

func (s *Store) Append(_ context.Context, correlationID string, events []models.Event, outbox []models.OutboxEntry) (store.AppendResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.runFor(correlationID)

	result := store.AppendResult{Conflicts: make(map[string]models.Event)}

	nextSeq := int64(len(r.events)) + 1

	for _, e := range events {
		if existing, dup := r.byIdemKey[e.IdempotencyKey]; dup && e.IdempotencyKey != "" {
			result.Conflicts[e.IdempotencyKey] = existing

			continue
		}

		if len(r.events) > 0 {
			last := r.events[len(r.events)-1]
			if last.Type.IsTerminal() {
				return store.AppendResult{}, store.ErrSequenceConflict
			}
		}

		e.SequenceNumber = nextSeq
		nextSeq++

		r.events = append(r.events, e)
		if e.IdempotencyKey != "" {
			r.byIdemKey[e.IdempotencyKey] = e
		}

		result.Events = append(result.Events, e)
		s.order = append(s.order, e.ID)
	}

	seqByEvent := make(map[string]int64, len(result.Events))
	for _, e := range result.Events {
		seqByEvent[e.ID] = e.SequenceNumber
	}

	for _, o := range outbox {
		entry := o
		if seq, ok := seqByEvent[entry.EventID]; ok {
			entry.SequenceNumber = seq
		}

		s.outbox[entry.EventID] = &entry
	}

	return result, nil
}

func (s *Store) Load(_ context.Context, correlationID string, fromSeq int64) ([]models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.runs[correlationID]
	if !ok {
		return nil, nil
	}

	out := make([]models.Event, 0, len(r.events))

	for _, e := range r.events {
		if e.SequenceNumber >= fromSeq {
			out = append(out, e)
		}
	}

	return out, nil
}

func (s *Store) WriteSnapshot(_ context.Context, snap models.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.runFor(snap.CorrelationID)
	r.snapshots = append(r.snapshots, snap)

	return nil
}

func (s *Store) ReadSnapshot(_ context.Context, correlationID string) (models.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.runs[correlationID]
	if !ok || len(r.snapshots) == 0 {
		return models.Snapshot{}, store.ErrSnapshotNotFound
	}

	return r.snapshots[len(r.snapshots)-1], nil
}

func (s *Store) ListSnapshots(_ context.Context, correlationID string) ([]models.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.runs[correlationID]
	if !ok {
		return nil, nil
	}

	out := append([]models.Snapshot(nil), r.snapshots...)

	return out, nil
}

func (s *Store) ScanOutbox(_ context.Context, limit int, afterCursor string) ([]models.OutboxEntry, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	skip := afterCursor != ""
	out := make([]models.OutboxEntry, 0, limit)

	cursor := afterCursor

	for _, id := range s.order {
		if skip {
			if id == afterCursor {
				skip = false
			}

			continue
		}

		entry, ok := s.outbox[id]
		if !ok || entry.PublishedAt != nil {
			continue
		}

		out = append(out, *entry)
		cursor = id

		if len(out) >= limit {
			break
		}
	}

	return out, cursor, nil
}

func (s *Store) MarkPublished(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		if entry, ok := s.outbox[id]; ok {
			now := nowFunc()
			entry.PublishedAt = &now
		}
	}

	return nil
}

func (s *Store) MarkPublishFailed(_ context.Context, eventID, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.outbox[eventID]; ok {
		entry.Attempts++
		entry.LastError = errMsg
	}

	return nil
}

func (s *Store) NextSequence(_ context.Context, correlationID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.runs[correlationID]
	if !ok {
		return 1, nil
	}

	return int64(len(r.events)) + 1, nil
}

// ResetOutboxForRequeue clears an outbox row's publication state, for tests
// that exercise a DLQ requeue. PostgresDLQ.Requeue does this in the same
// transaction as its own table update since both tables share one *sql.DB;
// the in-memory store has no such shared transaction, so outbox-package
// tests call this explicitly after dlq.Requeue to model the same effect.
func (s *Store) ResetOutboxForRequeue(eventID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.outbox[eventID]; ok {
		entry.PublishedAt = nil
		entry.Attempts = 0
		entry.LastError = ""
	}
}

// PurgeSnapshots deletes snapshot rows older than olderThan, excluding
// each run's most recent snapshot.
func (s *Store) PurgeSnapshots(_ context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var purged int64

	for _, r := range s.runs {
		if len(r.snapshots) <= 1 {
			continue
		}

		latest := r.snapshots[len(r.snapshots)-1]
		kept := make([]models.Snapshot, 0, len(r.snapshots))

		for _, snap := range r.snapshots {
			if snap.ID == latest.ID || !snap.CreatedAt.Before(olderThan) {
				kept = append(kept, snap)

				continue
			}

			purged++
		}

		r.snapshots = kept
	}

	return purged, nil
}

// PurgeEvents deletes published events older than olderThan. Unlike
// PostgresDLQ, dlq.Memory is a decoupled type with no shared lock over
// this store, so callers that also run the in-memory DLQ must quarantine
// before they age a run out via retention (acceptable for tests/local
// dev, the only settings this store targets).
func (s *Store) PurgeEvents(_ context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var purged int64

	for _, r := range s.runs {
		kept := make([]models.Event, 0, len(r.events))

		for _, e := range r.events {
			entry, hasOutbox := s.outbox[e.ID]
			unpublished := hasOutbox && entry.PublishedAt == nil
			expired := e.CreatedAt.Before(olderThan)

			if expired && !unpublished {
				purged++
				delete(r.byIdemKey, e.IdempotencyKey)
				delete(s.outbox, e.ID)

				continue
			}

			kept = append(kept, e)
		}

		r.events = kept
	}

	return purged, nil
}

// AllEvents returns every event ever appended for correlationID, for tests.
func (s *Store) AllEvents(correlationID string) []models.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.runs[correlationID]
	if !ok {
		return nil
	}

	out := append([]models.Event(nil), r.events...)
	sort.Slice(out, func(i, j int) bool { return out[i].SequenceNumber < out[j].SequenceNumber })

	return out
}
