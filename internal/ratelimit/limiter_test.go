package ratelimit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amirk1998/voice-journal/pkg/errors"
)

func TestCheckLimitExhaustsBurst(t *testing.T) {
	rl := NewRateLimiter(1, 3)

	for i := 0; i < 3; i++ {
		require.NoError(t, rl.CheckLimit("tag_unlock:t1"), "attempt %d within burst", i+1)
	}

	assert.ErrorIs(t, rl.CheckLimit("tag_unlock:t1"), errors.ErrRateLimitExceeded)
}

func TestKeysAreIndependent(t *testing.T) {
	rl := NewRateLimiter(1, 1)

	require.NoError(t, rl.CheckLimit("tag_unlock:t1"))
	assert.ErrorIs(t, rl.CheckLimit("tag_unlock:t1"), errors.ErrRateLimitExceeded)

	// A different tag's bucket is untouched
	assert.NoError(t, rl.CheckLimit("tag_unlock:t2"))
}

func TestGetLimiterReusesBucket(t *testing.T) {
	rl := NewRateLimiter(1, 1)

	a := rl.GetLimiter("k")
	b := rl.GetLimiter("k")
	assert.Same(t, a, b)
}

func TestCleanupBelowThresholdKeepsBuckets(t *testing.T) {
	rl := NewRateLimiter(1, 1)

	limiter := rl.GetLimiter("k")
	rl.Cleanup()
	assert.Same(t, limiter, rl.GetLimiter("k"))
}
