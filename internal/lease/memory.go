package lease

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type heldLease struct {
	token    Token
	deadline time.Time
}

// MemoryManager is an in-process lease manager for tests and single-process
// deployments where no external fast store is available.
type MemoryManager struct {
	mu    sync.Mutex
	leases map[string]heldLease
}

// NewMemory returns an empty in-process lease manager.
func NewMemory() *MemoryManager {
	return &MemoryManager{leases: make(map[string]heldLease)}
}

func (m *MemoryManager) Acquire(_ context.Context, correlationID string, ttl time.Duration) (Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()

	if existing, ok := m.leases[correlationID]; ok && existing.deadline.After(now) {
		return "", ErrBusy
	}

	token := Token(uuid.NewString())
	m.leases[correlationID] = heldLease{token: token, deadline: now.Add(ttl)}

	return token, nil
}

func (m *MemoryManager) Renew(_ context.Context, token Token, correlationID string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.leases[correlationID]
	if !ok || existing.token != token {
		return ErrLost
	}

	existing.deadline = time.Now().Add(ttl)
	m.leases[correlationID] = existing

	return nil
}

func (m *MemoryManager) Release(_ context.Context, token Token, correlationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.leases[correlationID]
	if !ok || existing.token != token {
		return ErrLost
	}

	delete(m.leases, correlationID)

	return nil
}
