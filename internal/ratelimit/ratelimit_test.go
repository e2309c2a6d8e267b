package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHostLimiterSpacesSameHost(t *testing.T) {
	h := NewHostLimiter(50*time.Millisecond, 50*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, h.Wait(ctx, "supermat.com.ar"))
	start := time.Now()
	require.NoError(t, h.Wait(ctx, "supermat.com.ar"))

	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestHostLimiterSeparatesHosts(t *testing.T) {
	h := NewHostLimiter(time.Minute, time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, h.Wait(ctx, "a.com"))
	require.NoError(t, h.Wait(ctx, "b.com"))

	short, stop := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer stop()
	assert.ErrorIs(t, h.Wait(short, "a.com"), context.DeadlineExceeded)
}

func TestHostLimiterReservesConsecutiveSlots(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	h := NewHostLimiter(2*time.Second, 2*time.Second)
	h.now = func() time.Time { return base }

	assert.Equal(t, time.Duration(0), h.reserve("a.com"))
	assert.Equal(t, 2*time.Second, h.reserve("a.com"))
	assert.Equal(t, 4*time.Second, h.reserve("a.com"))
	assert.Equal(t, time.Duration(0), h.reserve("b.com"))

	h.now = func() time.Time { return base.Add(time.Minute) }
	assert.Equal(t, time.Duration(0), h.reserve("a.com"), "stale slots do not accumulate")
}

func TestHostLimiterJitterWithinRange(t *testing.T) {
	h := NewHostLimiter(time.Second, 3*time.Second)
	for i := 0; i < 100; i++ {
		d := h.jitterDelay()
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.Less(t, d, 2*time.Second)
	}
}

func TestHostLimiterZeroDelay(t *testing.T) {
	h := NewHostLimiter(0, 0)
	for i := 0; i < 5; i++ {
		require.NoError(t, h.Wait(context.Background(), "a.com"))
	}
	assert.Empty(t, h.hosts)
}

func TestHostLimiterInvertedRange(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	h := NewHostLimiter(time.Second, 0)
	h.now = func() time.Time { return base }

	assert.Zero(t, h.jitterDelay())
	assert.Equal(t, time.Duration(0), h.reserve("a.com"))
	assert.Equal(t, time.Second, h.reserve("a.com"))
}
