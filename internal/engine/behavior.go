package engine

import (
	"context"

	"github.com/dukex/aob/pkg/models"
)

// Behavior is the narrow adapter boundary between the engine and the
// outside world for Task and Agent nodes: Task behaviors are expected to
// be pure/deterministic, Agent behaviors may call out to a model or tool
// gateway and are treated as non-deterministic by the engine (§1, §4.7.3).
// Tool/model adapter implementations themselves are out of scope; the
// engine only depends on this interface.
type Behavior interface {
	Execute(ctx context.Context, input any, runCtx models.RunContext) (map[string]any, error)
}

// BehaviorFunc adapts a plain function to Behavior.
type BehaviorFunc func(ctx context.Context, input any, runCtx models.RunContext) (map[string]any, error)

func (f BehaviorFunc) Execute(ctx context.Context, input any, runCtx models.RunContext) (map[string]any, error) {
	return f(ctx, input, runCtx)
}

// Registry resolves a node id to the Behavior that executes it. Lookups
// for unregistered Task/Agent nodes are a permanent failure (§4.7.3).
type Registry map[string]Behavior
