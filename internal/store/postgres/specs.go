package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukex/aob/internal/graph"
	"github.com/dukex/aob/pkg/models"
	"gopkg.in/yaml.v3"
)

// SpecRepository is a Postgres-backed graph.Repository sharing the event
// store's connection pool (table-per-concern, per
// operion/pkg/persistence/postgresql's layout).
type SpecRepository struct {
	db *sql.DB
}

// NewSpecRepository wraps an existing *sql.DB.
func NewSpecRepository(db *sql.DB) *SpecRepository {
	return &SpecRepository{db: db}
}

func (r *SpecRepository) Save(ctx context.Context, spec models.WorkflowSpec) error {
	raw, err := yaml.Marshal(spec)
	if err != nil {
		return fmt.Errorf("failed to marshal workflow spec: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO workflow_specs (id, spec_yaml) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET spec_yaml = EXCLUDED.spec_yaml
	`, spec.ID, string(raw))
	if err != nil {
		return fmt.Errorf("failed to save workflow spec %s: %w", spec.ID, err)
	}

	return nil
}

func (r *SpecRepository) Get(ctx context.Context, id string) (models.WorkflowSpec, error) {
	var raw string

	err := r.db.QueryRowContext(ctx, `SELECT spec_yaml FROM workflow_specs WHERE id = $1`, id).Scan(&raw)
	if err == sql.ErrNoRows {
		return models.WorkflowSpec{}, graph.ErrSpecNotFound
	}

	if err != nil {
		return models.WorkflowSpec{}, fmt.Errorf("failed to load workflow spec %s: %w", id, err)
	}

	return graph.ParseSpec([]byte(raw))
}

// RunIndex tracks which workflow_id a correlation_id was started against,
// so a Control API restart can recompile the right Graph to Resume a run
// without the caller resubmitting the workflow definition.
type RunIndex struct {
	db *sql.DB
}

// NewRunIndex wraps an existing *sql.DB.
func NewRunIndex(db *sql.DB) *RunIndex {
	return &RunIndex{db: db}
}

func (r *RunIndex) Save(ctx context.Context, correlationID, workflowID string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO runs (correlation_id, workflow_id) VALUES ($1, $2)
		ON CONFLICT (correlation_id) DO NOTHING
	`, correlationID, workflowID)
	if err != nil {
		return fmt.Errorf("failed to index run %s: %w", correlationID, err)
	}

	return nil
}

func (r *RunIndex) WorkflowID(ctx context.Context, correlationID string) (string, error) {
	var workflowID string

	err := r.db.QueryRowContext(ctx, `SELECT workflow_id FROM runs WHERE correlation_id = $1`, correlationID).Scan(&workflowID)
	if err == sql.ErrNoRows {
		return "", graph.ErrSpecNotFound
	}

	if err != nil {
		return "", fmt.Errorf("failed to look up run %s: %w", correlationID, err)
	}

	return workflowID, nil
}
