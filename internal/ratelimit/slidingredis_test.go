package ratelimit

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestSlidingWindow(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	now := time.Unix(1_700_000_000, 0)
	limiter := Sliding{Client: client, Prefix: "test:", Window: 2 * time.Second, Max: 2, Now: func() time.Time { return now }}
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		d, err := limiter.Check(ctx, "key")
		require.NoError(t, err)
		require.True(t, d.Allowed, "request %d", i)
		require.Equal(t, 2-(i+1), d.Remaining)
	}

	d, err := limiter.Check(ctx, "key")
	require.NoError(t, err)
	require.False(t, d.Allowed)
	require.Zero(t, d.Remaining)

	now = now.Add(3 * time.Second)
	d, err = limiter.Check(ctx, "key")
	require.NoError(t, err)
	require.True(t, d.Allowed, "events older than the window no longer count")
}

func TestSlidingDisabled(t *testing.T) {
	d, err := Sliding{Max: 0}.Check(context.Background(), "key")
	require.NoError(t, err)
	require.True(t, d.Allowed)
}
