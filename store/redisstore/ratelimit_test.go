package redisstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiterFixedWindow(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	l := NewRateLimiter(client, "", 2, time.Minute)

	for i := 0; i < 2; i++ {
		ok, err := l.Allow(ctx, "login:10.0.0.1")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := l.Allow(ctx, "login:10.0.0.1")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = l.Allow(ctx, "login:10.0.0.2")
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, time.Minute, mr.TTL("rl:login:10.0.0.1"))
	mr.FastForward(time.Minute + time.Second)

	ok, err = l.Allow(ctx, "login:10.0.0.1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRateLimiterReset(t *testing.T) {
	ctx := context.Background()
	_, client := newTestRedis(t)
	l := NewRateLimiter(client, "auth", 1, time.Minute)

	_, _ = l.Allow(ctx, "k")
	ok, _ := l.Allow(ctx, "k")
	assert.False(t, ok)

	require.NoError(t, l.Reset(ctx, "k"))
	ok, err := l.Allow(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRateLimiterBackendDown(t *testing.T) {
	mr, client := newTestRedis(t)
	l := NewRateLimiter(client, "", 1, time.Minute)
	mr.Close()

	_, err := l.Allow(context.Background(), "k")
	assert.ErrorIs(t, err, ErrBackend)
}
