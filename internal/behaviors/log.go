package behaviors

import (
	"context"
	"log/slog"

	"github.com/dukex/aob/pkg/models"
)

// LogBehavior executes a Task node by logging its input and the run's
// current bag, returning the input unchanged under the "logged_input" key
// as output — a deterministic no-op useful for debugging DAG shape without
// wiring real integrations.
// Grounded on operion/pkg/actions/log/action.go.
type LogBehavior struct {
	logger *slog.Logger
}

// NewLogBehavior builds a LogBehavior.
func NewLogBehavior(logger *slog.Logger) *LogBehavior {
	return &LogBehavior{logger: logger.With("behavior", "log")}
}

func (b *LogBehavior) Execute(ctx context.Context, input any, runCtx models.RunContext) (map[string]any, error) {
	b.logger.InfoContext(ctx, "executing log behavior", "input", input, "bag", runCtx.Bag)

	return map[string]any{"logged_input": input}, nil
}
