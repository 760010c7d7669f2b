package oracle

import (
	"context"

	"github.com/dukex/aob/pkg/models"
)

// Func adapts a plain function to the Client interface, used heavily in
// engine tests (mirrors the teacher's factory-function registration idiom).
type Func func(ctx context.Context, edge models.Edge, runCtx models.RunContext) Decision

func (f Func) Evaluate(ctx context.Context, edge models.Edge, runCtx models.RunContext) Decision {
	return f(ctx, edge, runCtx)
}

// AllowAll always allows, used as the default oracle in tests and examples.
func AllowAll() Client {
	return Func(func(context.Context, models.Edge, models.RunContext) Decision {
		return Decision{Allow: true}
	})
}

// DenyTagged denies any edge carrying one of the given policy tags.
func DenyTagged(tags ...string) Client {
	denied := make(map[string]bool, len(tags))
	for _, t := range tags {
		denied[t] = true
	}

	return Func(func(_ context.Context, edge models.Edge, _ models.RunContext) Decision {
		for _, p := range edge.Policies {
			if denied[p] {
				return Decision{Allow: false, Reason: "policy_tag:" + p}
			}
		}

		return Decision{Allow: true}
	})
}
