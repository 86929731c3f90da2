package rediscache

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func TestRedisCache_GetSetDel(t *testing.T) {
	mr := miniredis.RunT(t)
	c := New(mr.Addr())

	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "delivery:1:position", []byte(`{"lat":48.85}`), time.Minute))

	b, ok, err := c.Get(ctx, "delivery:1:position")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte(`{"lat":48.85}`), b)

	require.NoError(t, c.Del(ctx, "delivery:1:position"))
	_, ok, err = c.Get(ctx, "delivery:1:position")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRateLimiter_Allow(t *testing.T) {
	mr := miniredis.RunT(t)
	rl := NewRateLimiter(mr.Addr())

	ctx := context.Background()
	ok, n, err := rl.Allow(ctx, "rl:courier:42", 2, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(1), n)

	ok, n, _ = rl.Allow(ctx, "rl:courier:42", 2, time.Minute)
	require.True(t, ok)
	require.Equal(t, int64(2), n)

	ok, n, _ = rl.Allow(ctx, "rl:courier:42", 2, time.Minute)
	require.False(t, ok)
	require.Equal(t, int64(3), n)
}

func TestRateLimiter_KeyAlwaysHasTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	rl := NewRateLimiter(mr.Addr())

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, _, err := rl.Allow(ctx, "rl:courier:9", 2, time.Minute)
		require.NoError(t, err)
		// Ключ счётчика никогда не живёт без TTL, иначе окно зависнет навсегда.
		require.Greater(t, mr.TTL("rl:courier:9"), time.Duration(0))
	}
}

func TestRateLimiter_WindowExpires(t *testing.T) {
	mr := miniredis.RunT(t)
	rl := NewRateLimiter(mr.Addr())

	ctx := context.Background()
	ok, _, err := rl.Allow(ctx, "rl:courier:7", 1, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, _, _ = rl.Allow(ctx, "rl:courier:7", 1, time.Minute)
	require.False(t, ok)

	mr.FastForward(2 * time.Minute)

	ok, n, err := rl.Allow(ctx, "rl:courier:7", 1, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(1), n)
}
