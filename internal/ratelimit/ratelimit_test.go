// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/evidence-engine/pkg/types"
)

func TestTokenBucketBurstIsImmediate(t *testing.T) {
	b := NewTokenBucket(1, 3)
	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, b.Wait(context.Background()))
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestTokenBucketUnlimited(t *testing.T) {
	b := NewTokenBucket(0, 0)
	for i := 0; i < 100; i++ {
		require.NoError(t, b.Wait(context.Background()))
	}
}

func TestTokenBucketPenalizeBlocksUntilCooldown(t *testing.T) {
	b := NewTokenBucket(0, 1)
	b.Penalize(50 * time.Millisecond)
	assert.True(t, b.CoolingDown())

	start := time.Now()
	require.NoError(t, b.Wait(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
	assert.False(t, b.CoolingDown())
}

func TestTokenBucketPenalizeNeverShortens(t *testing.T) {
	b := NewTokenBucket(0, 1)
	b.Penalize(time.Hour)
	b.Penalize(time.Millisecond)
	assert.True(t, b.CoolingDown())
}

func TestTokenBucketWaitCancelled(t *testing.T) {
	b := NewTokenBucket(0, 1)
	b.Penalize(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, b.Wait(ctx), context.DeadlineExceeded)
}

func TestTokenBucketConcurrentUse(t *testing.T) {
	b := FromConfig(types.SourceConfig{RequestsPerSecond: 1000, Burst: 50})
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%5 == 0 {
				b.Penalize(time.Millisecond)
			}
			assert.NoError(t, b.Wait(context.Background()))
		}(i)
	}
	wg.Wait()
}

func TestNoop(t *testing.T) {
	var l Limiter = Noop{}
	l.Penalize(time.Hour)
	assert.NoError(t, l.Wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, l.Wait(ctx), context.Canceled)
}
