// Package oracle implements the Policy Oracle Client (C5, §4.5): a
// deny-by-exception wrapper around an external, deterministic decision
// service. A network error is retried with exponential backoff; exhaustion
// is treated as deny (fail-closed, per §7 and §8 I8).
package oracle

import (
	"context"

	"github.com/dukex/aob/pkg/models"
)

// Decision is the oracle's answer for a single edge evaluation.
type Decision struct {
	Allow  bool
	Reason string
}

// OracleUnavailableReason is the fixed Reason used when retries are
// exhausted (fail-closed default, §4.5, §7).
const OracleUnavailableReason = "oracle_unavailable"

// Client is the adapter contract consumed by the execution engine. The
// engine caches a decision only for the lifetime of a single node-step
// (§4.5); Client implementations must not cache beyond the call.
type Client interface {
	Evaluate(ctx context.Context, edge models.Edge, runCtx models.RunContext) Decision
}
