package outbox

import (
	"context"
	"errors"
	"sync"

	"github.com/dukex/aob/pkg/models"
)

// ErrBusUnavailable is returned by MemoryBus when it is configured to fail.
var ErrBusUnavailable = errors.New("outbox: bus unavailable")

// MemoryBus is an in-process Bus used by tests. It can be toggled to fail
// every Publish call, to exercise the publisher's retry/DLQ path.
type MemoryBus struct {
	mu        sync.Mutex
	failing   bool
	published []models.Event
}

// NewMemoryBus returns a MemoryBus that accepts every publish.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{}
}

// SetFailing toggles whether Publish returns ErrBusUnavailable.
func (b *MemoryBus) SetFailing(failing bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failing = failing
}

func (b *MemoryBus) Publish(_ context.Context, _ string, ev models.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.failing {
		return ErrBusUnavailable
	}

	b.published = append(b.published, ev)

	return nil
}

// Published returns every event accepted so far, for test assertions.
func (b *MemoryBus) Published() []models.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]models.Event, len(b.published))
	copy(out, b.published)

	return out
}
