// Package memrepo provides an in-memory graph.Repository for tests and
// single-process deployments.
package memrepo

import (
	"context"
	"sync"

	"github.com/dukex/aob/internal/graph"
	"github.com/dukex/aob/pkg/models"
)

// Repository is a goroutine-safe, process-local graph.Repository.
type Repository struct {
	mu    sync.Mutex
	specs map[string]models.WorkflowSpec
}

// New returns an empty in-memory repository.
func New() *Repository {
	return &Repository{specs: make(map[string]models.WorkflowSpec)}
}

func (r *Repository) Save(_ context.Context, spec models.WorkflowSpec) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.specs[spec.ID] = spec

	return nil
}

func (r *Repository) Get(_ context.Context, id string) (models.WorkflowSpec, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	spec, ok := r.specs[id]
	if !ok {
		return models.WorkflowSpec{}, graph.ErrSpecNotFound
	}

	return spec, nil
}
