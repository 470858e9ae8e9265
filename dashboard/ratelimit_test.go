package dashboard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiterPerIP(t *testing.T) {
	rl := NewRateLimiter(0.5, 2)

	assert.True(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.1"))
	assert.False(t, rl.Allow("10.0.0.1"), "burst exhausted")

	// A different caller has its own bucket.
	assert.True(t, rl.Allow("10.0.0.2"))
}

func TestRateLimiterCleanupPrunesIdleAndStops(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	stop := rl.StartCleanup(10*time.Millisecond, 20*time.Millisecond)
	defer stop()

	rl.Allow("10.0.0.9")
	require.Eventually(t, func() bool {
		rl.mu.Lock()
		defer rl.mu.Unlock()
		return len(rl.visitors) == 0
	}, time.Second, 5*time.Millisecond)

	stop()
	stop() // safe to call again

	// With the pruner stopped, buckets stick around past maxIdle.
	rl.Allow("10.0.0.9")
	time.Sleep(50 * time.Millisecond)
	rl.mu.Lock()
	remaining := len(rl.visitors)
	rl.mu.Unlock()
	assert.Equal(t, 1, remaining)
}
