package engine

import (
	"math"
	"math/rand"
	"time"

	"github.com/dukex/aob/pkg/models"
)

// backoffFactor is the exponential multiplier applied per retry attempt
// (§4.7.3's "jittered exponential backoff"); attempt 1 runs without a
// delay, and the first retry (attempt 2) waits BaseDelay unmultiplied.
const backoffFactor = 2.0

// nextDelay computes the delay before attempt (1-indexed, the attempt
// about to be made) given a node's RetryPolicy.
func nextDelay(policy models.RetryPolicy, attempt int) time.Duration {
	if attempt <= 1 || policy.BaseDelay <= 0 {
		return 0
	}

	scaled := float64(policy.BaseDelay) * math.Pow(backoffFactor, float64(attempt-2))
	delay := time.Duration(scaled)

	if policy.MaxDelay > 0 && delay > policy.MaxDelay {
		delay = policy.MaxDelay
	}

	if policy.Jitter {
		delay = time.Duration(float64(delay) * (0.5 + rand.Float64()*0.5)) //nolint:gosec
	}

	return delay
}
