package audit

import (
	"context"
	"sync"

	"github.com/dukex/aob/pkg/models"
)

// MemorySink collects records in-process, used by engine tests to assert
// a DecisionRecord was produced per node invocation.
type MemorySink struct {
	mu      sync.Mutex
	Records []models.DecisionRecord
}

func NewMemorySink() *MemorySink { return &MemorySink{} }

func (m *MemorySink) Record(_ context.Context, record models.DecisionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Records = append(m.Records, record)

	return nil
}

// All returns a snapshot copy of the recorded decisions.
func (m *MemorySink) All() []models.DecisionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]models.DecisionRecord(nil), m.Records...)
}
