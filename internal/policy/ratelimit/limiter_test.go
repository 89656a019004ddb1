package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWaitUnlimitedWhenRPSZero(t *testing.T) {
	t.Parallel()

	l := New(Config{})
	ctx := context.Background()
	for i := 0; i < 100; i++ {
		require.NoError(t, l.Wait(ctx, "https://example.com/page"))
	}
}

func TestWaitThrottlesPerDomain(t *testing.T) {
	t.Parallel()

	l := New(Config{RPS: 20, Burst: 1})
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://slow.example/a"))
	require.NoError(t, l.Wait(ctx, "https://slow.example/b"))
	require.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)

	// A different domain has its own bucket and is not delayed.
	start = time.Now()
	require.NoError(t, l.Wait(ctx, "https://other.example/a"))
	require.Less(t, time.Since(start), 40*time.Millisecond)
}

func TestWaitHonorsContextCancellation(t *testing.T) {
	t.Parallel()

	l := New(Config{RPS: 0.001, Burst: 1})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	require.NoError(t, l.Wait(ctx, "https://example.com/a"))
	require.Error(t, l.Wait(ctx, "https://example.com/b"))
}

func TestWaitSharesBucketAcrossPaths(t *testing.T) {
	t.Parallel()

	l := New(Config{RPS: 20, Burst: 1})
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://example.com/a"))
	require.NoError(t, l.Wait(ctx, "https://example.com/b?q=1"))
	require.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}
