package lease

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// renewScript atomically renews the TTL only if the caller still holds the
// lease (its token matches the stored value) — a Lua compare-and-set,
// since go-redis has no native "renew if owner" primitive.
const renewScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
else
	return 0
end
`

// releaseScript deletes the key only if the caller still holds it.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`

// RedisManager is the production lease implementation, grounded on
// operion's redis.UniversalClient wiring (pkg/triggers/queue) and the
// SET NX EX acquire primitive from the original prototype's RedisLease.
type RedisManager struct {
	client redis.UniversalClient
	prefix string
}

// NewRedis wraps an existing redis client.
func NewRedis(client redis.UniversalClient) *RedisManager {
	return &RedisManager{client: client, prefix: "aob:lease:"}
}

func (m *RedisManager) key(correlationID string) string {
	return m.prefix + correlationID
}

func (m *RedisManager) Acquire(ctx context.Context, correlationID string, ttl time.Duration) (Token, error) {
	token := Token(uuid.NewString())

	ok, err := m.client.SetNX(ctx, m.key(correlationID), string(token), ttl).Result()
	if err != nil {
		return "", fmt.Errorf("lease: acquire failed: %w", err)
	}

	if !ok {
		return "", ErrBusy
	}

	return token, nil
}

func (m *RedisManager) Renew(ctx context.Context, token Token, correlationID string, ttl time.Duration) error {
	res, err := m.client.Eval(ctx, renewScript, []string{m.key(correlationID)}, string(token), ttl.Milliseconds()).Result()
	if err != nil {
		return fmt.Errorf("lease: renew failed: %w", err)
	}

	if n, ok := res.(int64); !ok || n == 0 {
		return ErrLost
	}

	return nil
}

func (m *RedisManager) Release(ctx context.Context, token Token, correlationID string) error {
	res, err := m.client.Eval(ctx, releaseScript, []string{m.key(correlationID)}, string(token)).Result()
	if err != nil {
		return fmt.Errorf("lease: release failed: %w", err)
	}

	if n, ok := res.(int64); !ok || n == 0 {
		return ErrLost
	}

	return nil
}
