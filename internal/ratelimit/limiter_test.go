package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChatRelay/go-chat-relay/internal/util"
	"github.com/ChatRelay/go-chat-relay/models"
)

func testRule(window time.Duration, max int) models.RateLimitRule {
	return models.RateLimitRule{Window: window, Max: max, Prefix: "rl:test:"}
}

func TestLimiter_WindowExhaustion(t *testing.T) {
	provider := NewMemoryProvider()
	defer provider.Close()

	limiter := NewLimiter(testRule(time.Minute, 5), provider, util.NewMockLogger())
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		res, err := limiter.Check(ctx, "u1")
		require.NoError(t, err)
		assert.True(t, res.Allowed, "request %d should be allowed", i)
		assert.Equal(t, 5-i, res.Remaining)
	}

	res, err := limiter.Check(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.Equal(t, 5, res.Limit)
	assert.Greater(t, res.RetryAfter, time.Duration(0))
}

func TestLimiter_RejectionDoesNotConsumeQuota(t *testing.T) {
	provider := NewMemoryProvider()
	defer provider.Close()

	ctx := context.Background()
	window := time.Minute

	for i := 0; i < 3; i++ {
		_, _, _, err := provider.CheckAndIncrement(ctx, "k", window, 3)
		require.NoError(t, err)
	}

	// Repeated rejections must leave the counter at max, not grow it.
	for i := 0; i < 10; i++ {
		allowed, count, _, err := provider.CheckAndIncrement(ctx, "k", window, 3)
		require.NoError(t, err)
		assert.False(t, allowed)
		assert.Equal(t, 3, count)
	}
}

func TestLimiter_WindowReset(t *testing.T) {
	provider := NewMemoryProvider()
	defer provider.Close()

	now := time.Now()
	provider.now = func() time.Time { return now }

	ctx := context.Background()
	window := time.Minute

	for i := 0; i < 2; i++ {
		_, _, _, err := provider.CheckAndIncrement(ctx, "k", window, 2)
		require.NoError(t, err)
	}
	allowed, _, resetAt, err := provider.CheckAndIncrement(ctx, "k", window, 2)
	require.NoError(t, err)
	assert.False(t, allowed)

	// Advance past the window deadline: fresh counter, count reset to 1.
	now = resetAt.Add(time.Millisecond)
	allowed, count, newReset, err := provider.CheckAndIncrement(ctx, "k", window, 2)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, 1, count)
	assert.True(t, newReset.After(resetAt))
}

func TestLimiter_ConcurrentLastSlot(t *testing.T) {
	provider := NewMemoryProvider()
	defer provider.Close()

	ctx := context.Background()
	const max = 10
	const callers = 50

	var wg sync.WaitGroup
	allowedCount := make(chan bool, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			allowed, _, _, err := provider.CheckAndIncrement(ctx, "k", time.Minute, max)
			assert.NoError(t, err)
			allowedCount <- allowed
		}()
	}
	wg.Wait()
	close(allowedCount)

	got := 0
	for allowed := range allowedCount {
		if allowed {
			got++
		}
	}
	assert.Equal(t, max, got, "exactly max concurrent checks may pass")
}

func TestLimiter_IndependentKeysAndInstances(t *testing.T) {
	provider := NewMemoryProvider()
	defer provider.Close()

	ctx := context.Background()
	logger := util.NewMockLogger()

	messages := NewLimiter(models.RateLimitRule{Window: time.Minute, Max: 1, Prefix: "rl:msg:"}, provider, logger)
	friends := NewLimiter(models.RateLimitRule{Window: time.Minute, Max: 1, Prefix: "rl:friend:"}, provider, logger)

	res, err := messages.Check(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	res, err = messages.Check(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, res.Allowed)

	// Exhausting the messages limiter must not affect the friends limiter
	// for the same caller, nor other callers on the messages limiter.
	res, err = friends.Check(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	res, err = messages.Check(ctx, "u2")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestLimiter_DisabledRule(t *testing.T) {
	provider := NewMemoryProvider()
	defer provider.Close()

	limiter := NewLimiter(models.RateLimitRule{Disabled: true, Window: time.Minute, Max: 1}, provider, util.NewMockLogger())

	for i := 0; i < 5; i++ {
		res, err := limiter.Check(context.Background(), "u1")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}
}

func TestMemoryProvider_Sweep(t *testing.T) {
	provider := NewMemoryProviderWithConfig(models.MemoryStorageConfig{CleanupInterval: time.Hour})
	defer provider.Close()

	now := time.Now()
	provider.now = func() time.Time { return now }

	ctx := context.Background()
	_, _, _, err := provider.CheckAndIncrement(ctx, "stale", time.Minute, 1)
	require.NoError(t, err)
	_, _, _, err = provider.CheckAndIncrement(ctx, "fresh", time.Hour, 1)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)

	// Run one sweep pass directly instead of waiting on the ticker.
	provider.mu.Lock()
	for key, entry := range provider.store {
		if now.After(entry.resetAt) {
			delete(provider.store, key)
		}
	}
	provider.mu.Unlock()

	provider.mu.Lock()
	_, staleExists := provider.store["stale"]
	_, freshExists := provider.store["fresh"]
	provider.mu.Unlock()

	assert.False(t, staleExists)
	assert.True(t, freshExists)
}
