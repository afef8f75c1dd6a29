package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ChatRelay/go-chat-relay/models"
)

// checkScript performs the fixed-window check-and-increment atomically on
// the Redis side. The counter is only incremented when a slot remains, and
// the TTL is set on window creation so expired keys evict themselves.
//
// Returns {allowed, count, pttl_ms}.
var checkScript = redis.NewScript(`
local max = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local count = tonumber(redis.call('GET', KEYS[1]) or '0')
if count >= max then
  return {0, count, redis.call('PTTL', KEYS[1])}
end
count = redis.call('INCR', KEYS[1])
if count == 1 then
  redis.call('PEXPIRE', KEYS[1], window)
end
return {1, count, redis.call('PTTL', KEYS[1])}
`)

// RedisProvider is a rate limit provider backed by a shared Redis, giving
// correct limits when serving from more than one process.
type RedisProvider struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisProvider connects to Redis and verifies the connection.
func NewRedisProvider(cfg models.RedisConfig) (*RedisProvider, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("redis rate limit provider requires a URL")
	}

	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis URL: %w", err)
	}
	opt.ReadTimeout = 5 * time.Second
	opt.WriteTimeout = 5 * time.Second

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisProvider{client: client, now: time.Now}, nil
}

// NewRedisProviderWithClient wraps an existing client, for tests and for
// callers that already hold a connection pool.
func NewRedisProviderWithClient(client *redis.Client) *RedisProvider {
	return &RedisProvider{client: client, now: time.Now}
}

// GetName returns the provider name
func (p *RedisProvider) GetName() string {
	return "redis"
}

// CheckAndIncrement runs the atomic window check on the Redis side.
func (p *RedisProvider) CheckAndIncrement(ctx context.Context, key string, window time.Duration, maxRequests int) (bool, int, time.Time, error) {
	res, err := checkScript.Run(ctx, p.client, []string{key}, maxRequests, window.Milliseconds()).Slice()
	if err != nil {
		return false, 0, time.Time{}, fmt.Errorf("redis rate limit check: %w", err)
	}
	if len(res) != 3 {
		return false, 0, time.Time{}, fmt.Errorf("redis rate limit check: unexpected reply %v", res)
	}

	allowed := res[0].(int64) == 1
	count := int(res[1].(int64))
	pttl := res[2].(int64)

	resetAt := p.now().Add(window)
	if pttl > 0 {
		resetAt = p.now().Add(time.Duration(pttl) * time.Millisecond)
	}

	return allowed, count, resetAt, nil
}

// Close closes the underlying client.
func (p *RedisProvider) Close() error {
	return p.client.Close()
}
