// Package outbox implements the transactional outbox publisher (C3, §4.3):
// a background loop that drains unpublished rows written by the engine's
// appendAndApply and hands each one to an EventBus, partitioned by
// correlation_id, quarantining an entry to the DLQ after it exhausts its
// retry budget.
package outbox

import (
	"context"

	"github.com/dukex/aob/pkg/models"
)

// Bus is the publish-side port the outbox drains into. It is intentionally
// narrower than operion's eventbus.EventBus (no Subscribe side): the
// publisher only ever writes.
type Bus interface {
	// Publish delivers ev keyed by key (correlation_id, so a transport with
	// partitioned topics preserves per-run ordering). Implementations
	// should treat the call as at-least-once: the caller retries on error.
	Publish(ctx context.Context, key string, ev models.Event) error
}
