package ratelimit_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomworks/loom/pkg/ratelimit"
)

func TestCheck_WindowExhaustion(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	limiter := ratelimit.New(ratelimit.WithClock(func() time.Time { return now }))

	for i := range ratelimit.DefaultLimit {
		result := limiter.Check("client-1")
		require.True(t, result.Allowed, "request %d should be allowed", i+1)
		assert.Equal(t, ratelimit.DefaultLimit, result.Limit)
		assert.Equal(t, ratelimit.DefaultLimit-i-1, result.Remaining)
		assert.Equal(t, now.Add(ratelimit.DefaultWindow), result.ResetAt)
	}

	// The 11th call within the same window is rejected.
	result := limiter.Check("client-1")
	assert.False(t, result.Allowed)
	assert.Zero(t, result.Remaining)

	// Other keys are unaffected.
	assert.True(t, limiter.Check("client-2").Allowed)
}

func TestCheck_ResetAfterWindow(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	limiter := ratelimit.New(ratelimit.WithClock(func() time.Time { return now }))

	for range ratelimit.DefaultLimit {
		limiter.Check("client-1")
	}

	require.False(t, limiter.Check("client-1").Allowed)

	now = now.Add(ratelimit.DefaultWindow)

	result := limiter.Check("client-1")
	assert.True(t, result.Allowed)
	assert.Equal(t, ratelimit.DefaultLimit-1, result.Remaining)
	assert.Equal(t, now.Add(ratelimit.DefaultWindow), result.ResetAt)
}

func TestCheck_EvictsExpiredBeforeOldest(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	limiter := ratelimit.New(
		ratelimit.WithMaxKeys(3),
		ratelimit.WithClock(func() time.Time { return now }),
	)

	limiter.Check("stale-1")
	limiter.Check("stale-2")

	// Let the first two windows expire, then fill the third slot.
	now = now.Add(ratelimit.DefaultWindow)
	limiter.Check("fresh-1")

	// Adding a fourth key purges the expired entries instead of fresh-1.
	limiter.Check("fresh-2")
	assert.LessOrEqual(t, limiter.Size(), 3)

	result := limiter.Check("fresh-1")
	assert.Equal(t, ratelimit.DefaultLimit-2, result.Remaining, "fresh-1 counter must survive eviction")
}

func TestCheck_BoundedKeys(t *testing.T) {
	t.Parallel()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	now := base
	limiter := ratelimit.New(
		ratelimit.WithMaxKeys(100),
		ratelimit.WithClock(func() time.Time { return now }),
	)

	for i := range 500 {
		now = base.Add(time.Duration(i) * time.Millisecond)
		limiter.Check(fmt.Sprintf("client-%d", i))
	}

	assert.LessOrEqual(t, limiter.Size(), 100)
}
