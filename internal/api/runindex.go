package api

import (
	"context"
	"errors"
	"sync"
)

// ErrRunNotIndexed is returned by RunIndex.WorkflowID when the
// correlation_id was never recorded (e.g. an unknown run id).
var ErrRunNotIndexed = errors.New("api: run not indexed")

// RunIndex remembers which workflow_id a correlation_id was started
// against, so Resume can recompile the same Graph without the caller
// resubmitting the workflow definition.
type RunIndex interface {
	Save(ctx context.Context, correlationID, workflowID string) error
	WorkflowID(ctx context.Context, correlationID string) (string, error)
}

// MemoryRunIndex is an in-process RunIndex used by tests and single-
// process deployments.
type MemoryRunIndex struct {
	mu   sync.Mutex
	byID map[string]string
}

// NewMemoryRunIndex returns an empty in-memory RunIndex.
func NewMemoryRunIndex() *MemoryRunIndex {
	return &MemoryRunIndex{byID: make(map[string]string)}
}

func (m *MemoryRunIndex) Save(_ context.Context, correlationID, workflowID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.byID[correlationID] = workflowID

	return nil
}

func (m *MemoryRunIndex) WorkflowID(_ context.Context, correlationID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byID[correlationID]
	if !ok {
		return "", ErrRunNotIndexed
	}

	return id, nil
}
