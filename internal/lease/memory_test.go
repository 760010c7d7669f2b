package lease_test

import (
	"context"
	"testing"
	"time"

	"github.com/dukex/aob/internal/lease"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireExclusive(t *testing.T) {
	ctx := context.Background()
	m := lease.NewMemory()

	tok, err := m.Acquire(ctx, "run-1", time.Minute)
	require.NoError(t, err)
	assert.NotEmpty(t, tok)

	_, err = m.Acquire(ctx, "run-1", time.Minute)
	assert.ErrorIs(t, err, lease.ErrBusy)
}

func TestRenewRequiresOwnership(t *testing.T) {
	ctx := context.Background()
	m := lease.NewMemory()

	tok, err := m.Acquire(ctx, "run-1", time.Minute)
	require.NoError(t, err)

	require.NoError(t, m.Renew(ctx, tok, "run-1", time.Minute))
	assert.ErrorIs(t, m.Renew(ctx, "bogus", "run-1", time.Minute), lease.ErrLost)
}

func TestReleaseAllowsReacquire(t *testing.T) {
	ctx := context.Background()
	m := lease.NewMemory()

	tok, err := m.Acquire(ctx, "run-1", time.Minute)
	require.NoError(t, err)
	require.NoError(t, m.Release(ctx, tok, "run-1"))

	_, err = m.Acquire(ctx, "run-1", time.Minute)
	require.NoError(t, err)
}

func TestAcquireAfterExpiry(t *testing.T) {
	ctx := context.Background()
	m := lease.NewMemory()

	_, err := m.Acquire(ctx, "run-1", time.Millisecond)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	_, err = m.Acquire(ctx, "run-1", time.Minute)
	require.NoError(t, err)
}
