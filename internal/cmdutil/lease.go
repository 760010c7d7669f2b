package cmdutil

import (
	"fmt"

	"github.com/dukex/aob/internal/lease"
	redis "github.com/redis/go-redis/v9"
)

// NewLease builds the Session Lease Manager named by provider ("redis" or
// "memory"). redisURL is parsed with redis.ParseURL and is required for
// "redis".
func NewLease(provider, redisURL string) (lease.Manager, error) {
	switch provider {
	case "redis":
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("cmdutil: parse redis url: %w", err)
		}

		return lease.NewRedis(redis.NewClient(opts)), nil
	case "memory", "":
		return lease.NewMemory(), nil
	default:
		return nil, fmt.Errorf("cmdutil: unsupported lease provider %q", provider)
	}
}
