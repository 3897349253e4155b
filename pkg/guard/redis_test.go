package guard

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisGuard(t *testing.T) *RedisGuard {
	t.Helper()

	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})

	t.Cleanup(func() {
		_ = client.Close()
	})

	return NewRedisGuard(client)
}

func TestRedisGuard_TryAcquire(t *testing.T) {
	ctx := context.Background()
	g := newRedisGuard(t)

	conflict, err := g.TryAcquire(ctx, "ticket-1", []string{"mysql-prod-01", "mysql-prod-02"})
	require.NoError(t, err)
	assert.Nil(t, conflict)

	holder, err := g.Holder(ctx, "mysql-prod-02")
	require.NoError(t, err)
	assert.Equal(t, "ticket-1", holder)
}

func TestRedisGuard_TryAcquireAllOrNothing(t *testing.T) {
	ctx := context.Background()
	g := newRedisGuard(t)

	_, err := g.TryAcquire(ctx, "ticket-1", []string{"mysql-prod-02"})
	require.NoError(t, err)

	conflict, err := g.TryAcquire(ctx, "ticket-2", []string{"mysql-prod-01", "mysql-prod-02"})
	require.NoError(t, err)
	require.NotNil(t, conflict)
	assert.Equal(t, "mysql-prod-02", conflict.ResourceID)
	assert.Equal(t, "ticket-1", conflict.HolderID)

	holder, err := g.Holder(ctx, "mysql-prod-01")
	require.NoError(t, err)
	assert.Empty(t, holder)
}

func TestRedisGuard_TryAcquireReentrant(t *testing.T) {
	ctx := context.Background()
	g := newRedisGuard(t)

	_, err := g.TryAcquire(ctx, "ticket-1", []string{"mysql-prod-01"})
	require.NoError(t, err)

	conflict, err := g.TryAcquire(ctx, "ticket-1", []string{"mysql-prod-01"})
	require.NoError(t, err)
	assert.Nil(t, conflict)
}

func TestRedisGuard_Release(t *testing.T) {
	ctx := context.Background()
	g := newRedisGuard(t)

	_, err := g.TryAcquire(ctx, "ticket-1", []string{"mysql-prod-01"})
	require.NoError(t, err)

	err = g.Release(ctx, "ticket-2", []string{"mysql-prod-01"})
	require.NoError(t, err)

	holder, err := g.Holder(ctx, "mysql-prod-01")
	require.NoError(t, err)
	assert.Equal(t, "ticket-1", holder)

	err = g.Release(ctx, "ticket-1", []string{"mysql-prod-01"})
	require.NoError(t, err)

	holder, err = g.Holder(ctx, "mysql-prod-01")
	require.NoError(t, err)
	assert.Empty(t, holder)
}

func TestRedisGuard_EmptyResourceList(t *testing.T) {
	ctx := context.Background()
	g := newRedisGuard(t)

	conflict, err := g.TryAcquire(ctx, "ticket-1", nil)
	require.NoError(t, err)
	assert.Nil(t, conflict)

	err = g.Release(ctx, "ticket-1", nil)
	require.NoError(t, err)
}
