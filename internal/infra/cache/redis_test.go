package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MRamiBalles/uplink-sim/server/internal/domain"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *StatusCache) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return mr, NewStatusCache(client, time.Minute)
}

func TestStatusCachePutGet(t *testing.T) {
	_, c := setupTestRedis(t)
	ctx := context.Background()

	want := domain.SessionStatus{SessionID: "s1", GameTick: 40, Speed: domain.SpeedFast, Active: true, Balance: 1500, TraceProgress: 0.25}
	require.NoError(t, c.Put(ctx, want))

	got, err := c.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, want, *got)
}

func TestStatusCacheMissAndInvalidate(t *testing.T) {
	_, c := setupTestRedis(t)
	ctx := context.Background()

	_, err := c.Get(ctx, "nobody")
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, c.PutMany(ctx, []domain.SessionStatus{{SessionID: "a"}, {SessionID: "b"}}))
	require.NoError(t, c.Invalidate(ctx, "a"))

	_, err = c.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrMiss)
	_, err = c.Get(ctx, "b")
	assert.NoError(t, err)
}

func TestStatusCacheExpires(t *testing.T) {
	mr, c := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, domain.SessionStatus{SessionID: "s1"}))
	mr.FastForward(2 * time.Minute)

	_, err := c.Get(ctx, "s1")
	assert.ErrorIs(t, err, ErrMiss)
}
