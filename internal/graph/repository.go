package graph

import (
	"context"
	"errors"

	"github.com/dukex/aob/pkg/models"
)

// ErrSpecNotFound is returned by Repository.Get for an unknown workflow id.
var ErrSpecNotFound = errors.New("graph: workflow spec not found")

// Repository persists compiled-valid WorkflowSpecs by id, so a run started
// against one can be recompiled later (on Resume, or after a process
// restart) without the caller re-submitting the YAML. Grounded on
// operion/pkg/workflow.Repository's thin wrapper over a persistence
// backend, addressed by workflow id rather than correlation_id.
type Repository interface {
	Save(ctx context.Context, spec models.WorkflowSpec) error
	Get(ctx context.Context, id string) (models.WorkflowSpec, error)
}
