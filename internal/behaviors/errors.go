package behaviors

import "github.com/dukex/aob/internal/engine"

// transientNetworkError marks network failures and 5xx upstream
// responses as retryable (§4.7.3), vs. a non-retryable 4xx or marshal
// error.
func transientNetworkError(err error) error {
	return engine.Transient(err)
}
