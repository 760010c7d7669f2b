package engine

import "fmt"

// idempotencyKey derives the (correlation_id, node_id, step, attempt)
// composite key used to make append calls safe to retry (§4.2, §4.7.3).
func idempotencyKey(correlationID, nodeID, step string, attempt int) string {
	return fmt.Sprintf("%s:%s:%s:%d", correlationID, nodeID, step, attempt)
}
