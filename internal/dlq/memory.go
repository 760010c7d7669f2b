package dlq

import (
	"context"
	"sync"
	"time"

	"github.com/dukex/aob/pkg/models"
)

// Memory is an in-process DLQ used by tests and the outbox publisher's
// own unit tests.
type Memory struct {
	mu      sync.Mutex
	entries map[string]models.DLQEntry
}

// NewMemory returns an empty in-memory DLQ.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]models.DLQEntry)}
}

func (m *Memory) Quarantine(_ context.Context, eventID, errMsg string, quarantineTTL time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry := m.entries[eventID]
	entry.EventID = eventID
	entry.Error = errMsg
	entry.QuarantineUntil = time.Now().Add(quarantineTTL)
	m.entries[eventID] = entry

	return nil
}

func (m *Memory) List(_ context.Context, readyForRetry bool) ([]models.DLQEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.DLQEntry, 0, len(m.entries))

	for _, e := range m.entries {
		if readyForRetry && e.QuarantineUntil.After(time.Now()) {
			continue
		}

		out = append(out, e)
	}

	return out, nil
}

func (m *Memory) Requeue(_ context.Context, eventID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.entries[eventID]; ok {
		e.ManualRetries++
		e.QuarantineUntil = time.Now()
		m.entries[eventID] = e
	}

	delete(m.entries, eventID)

	return nil
}

func (m *Memory) Purge(_ context.Context, eventID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, eventID)

	return nil
}

func (m *Memory) PurgeExpired(_ context.Context, cutoff time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ids []string

	for id, e := range m.entries {
		if e.QuarantineUntil.Before(cutoff) {
			ids = append(ids, id)
			delete(m.entries, id)
		}
	}

	return ids, nil
}
