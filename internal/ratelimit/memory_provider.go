package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ChatRelay/go-chat-relay/models"
)

// MemoryProvider is a thread-safe in-memory rate limit provider. Correct
// only within a single process; multi-process deployments need the redis
// provider so every instance sees the same counters.
type MemoryProvider struct {
	mu              sync.Mutex
	store           map[string]*memoryEntry
	cleanupInterval time.Duration
	now             func() time.Time
	stop            chan struct{}
	stopOnce        sync.Once
}

type memoryEntry struct {
	count   int
	resetAt time.Time
}

// NewMemoryProvider creates a new in-memory rate limit provider
func NewMemoryProvider() *MemoryProvider {
	return NewMemoryProviderWithConfig(models.MemoryStorageConfig{})
}

// NewMemoryProviderWithConfig creates a new in-memory rate limit provider with custom config
func NewMemoryProviderWithConfig(config models.MemoryStorageConfig) *MemoryProvider {
	cleanupInterval := config.CleanupInterval
	if cleanupInterval == 0 {
		cleanupInterval = 1 * time.Minute
	}

	provider := &MemoryProvider{
		store:           make(map[string]*memoryEntry),
		cleanupInterval: cleanupInterval,
		now:             time.Now,
		stop:            make(chan struct{}),
	}

	// Sweep expired counters so the map stays bounded by active keys,
	// not by every key ever seen.
	go provider.cleanupExpired()

	return provider
}

// GetName returns the provider name
func (p *MemoryProvider) GetName() string {
	return "memory"
}

// CheckAndIncrement checks whether a request is allowed and increments the
// counter only when it is. The whole operation holds the lock, so two
// concurrent callers racing for the last slot serialize and exactly one wins.
func (p *MemoryProvider) CheckAndIncrement(ctx context.Context, key string, window time.Duration, maxRequests int) (bool, int, time.Time, error) {
	select {
	case <-ctx.Done():
		return false, 0, time.Time{}, fmt.Errorf("context canceled: %w", ctx.Err())
	default:
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	entry, exists := p.store[key]

	// New window: reset to 1 and advance the deadline.
	if !exists || now.After(entry.resetAt) {
		resetAt := now.Add(window)
		p.store[key] = &memoryEntry{
			count:   1,
			resetAt: resetAt,
		}
		return true, 1, resetAt, nil
	}

	if entry.count >= maxRequests {
		// Rejected calls do not consume quota they already tripped.
		return false, entry.count, entry.resetAt, nil
	}

	entry.count++
	return true, entry.count, entry.resetAt, nil
}

// Close stops the background sweeper.
func (p *MemoryProvider) Close() error {
	p.stopOnce.Do(func() { close(p.stop) })
	return nil
}

// cleanupExpired periodically removes counters whose window has lapsed by
// more than one cleanup interval.
func (p *MemoryProvider) cleanupExpired() {
	ticker := time.NewTicker(p.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.mu.Lock()
			now := p.now()
			for key, entry := range p.store {
				if now.After(entry.resetAt) {
					delete(p.store, key)
				}
			}
			p.mu.Unlock()
		}
	}
}
