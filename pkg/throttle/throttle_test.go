package throttle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledThrottleNeverBlocks(t *testing.T) {
	th := New(0)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	for i := 0; i < 100; i++ {
		require.NoError(t, th.Wait(ctx))
	}
	assert.Equal(t, float64(0), th.Limit())
}

func TestThrottleCapsRate(t *testing.T) {
	th := New(50) // 50 req/s => 20ms apart after burst is consumed
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, th.Wait(ctx))
	}
	elapsed := time.Since(start)

	// 5 requests at 50/s with burst 1 should take at least ~80ms (4 waits).
	assert.GreaterOrEqual(t, elapsed, 60*time.Millisecond)
	assert.Equal(t, float64(50), th.Limit())
}

func TestThrottleRespectsContextCancellation(t *testing.T) {
	th := New(1)
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, th.Wait(context.Background()))
	cancel()
	err := th.Wait(ctx)
	assert.Error(t, err)
}

func TestNilThrottleNeverBlocks(t *testing.T) {
	var th *Throttle
	assert.NoError(t, th.Wait(context.Background()))
	assert.Equal(t, float64(0), th.Limit())
}
