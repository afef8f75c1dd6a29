package models

import (
	"time"
)

// Config holds the core configuration for GoChatRelay.
type Config struct {
	// Core identity
	AppName   string          `json:"app_name" toml:"app_name"`
	BaseURL   string          `json:"base_url" toml:"base_url"`
	BasePath  string          `json:"base_path" toml:"base_path"`
	Database  DatabaseConfig  `json:"database" toml:"database"`
	Logger    LoggerConfig    `json:"logger" toml:"logger"`
	Presence  PresenceConfig  `json:"presence" toml:"presence"`
	RateLimit RateLimitConfig `json:"rate_limit" toml:"rate_limit"`
	EventBus  EventBusConfig  `json:"event_bus" toml:"event_bus"`
	Security  SecurityConfig  `json:"security" toml:"security"`
}

type DatabaseConfig struct {
	Provider        string        `json:"provider" toml:"provider"`
	URL             string        `json:"url" toml:"url"`
	MaxOpenConns    int           `json:"max_open_conns" toml:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns" toml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" toml:"conn_max_lifetime"`
	Debug           bool          `json:"debug" toml:"debug"`
}

type LoggerConfig struct {
	Level string `json:"level" toml:"level"`
}

// PresenceConfig controls the heartbeat state machine and liveness inference.
type PresenceConfig struct {
	// HeartbeatInterval is how often an online client re-asserts its status
	// so last_active never goes stale while the client is connected.
	HeartbeatInterval time.Duration `json:"heartbeat_interval" toml:"heartbeat_interval"`
	// TypingTimeout is the quiet period after which the typing flag
	// self-clears when no further activity events arrive.
	TypingTimeout time.Duration `json:"typing_timeout" toml:"typing_timeout"`
	// OfflineThreshold is how stale last_active may be before a record is
	// read as offline even without an explicit offline write. Disconnect
	// writes are best-effort and may be lost, so readers must infer.
	OfflineThreshold time.Duration `json:"offline_threshold" toml:"offline_threshold"`
}

// RateLimitRule is one fixed-window throttle policy.
type RateLimitRule struct {
	// Disable this limiter entirely
	Disabled bool `json:"disabled" toml:"disabled"`

	// Time window for the rate limit
	Window time.Duration `json:"window" toml:"window"`

	// Max number of requests allowed within the window
	Max int `json:"max" toml:"max"`

	// Optional override for the storage namespace
	Prefix string `json:"prefix,omitempty" toml:"prefix"`
}

// RateLimitConfig holds the independently keyed limiter instances.
// Exhausting one never affects another.
type RateLimitConfig struct {
	// Provider selects the counter backend: "memory" or "redis".
	// Memory only gives correct limits within a single process; deployments
	// serving from more than one process must use redis.
	Provider string       `json:"provider" toml:"provider"`
	Redis    *RedisConfig `json:"redis,omitempty" toml:"redis"`

	// Memory contains configuration options for in-memory storage
	Memory *MemoryStorageConfig `json:"memory,omitempty" toml:"memory"`

	Messages       RateLimitRule `json:"messages" toml:"messages"`
	Auth           RateLimitRule `json:"auth" toml:"auth"`
	FriendRequests RateLimitRule `json:"friend_requests" toml:"friend_requests"`
	Presence       RateLimitRule `json:"presence" toml:"presence"`
}

// MemoryStorageConfig contains configuration options for in-memory rate limit storage
type MemoryStorageConfig struct {
	// CleanupInterval specifies how often to sweep expired counters.
	// Defaults to 1 minute if not specified.
	CleanupInterval time.Duration `json:"cleanup_interval" toml:"cleanup_interval"`
}

type EventBusConfig struct {
	// Prefix namespaces every topic on the bus.
	Prefix     string       `json:"prefix" toml:"prefix"`
	BufferSize int          `json:"buffer_size" toml:"buffer_size"`
	Provider   string       `json:"provider" toml:"provider"`
	Redis      *RedisConfig `json:"redis" toml:"redis"`
}

type RedisConfig struct {
	URL           string `json:"url" toml:"url"`
	ConsumerGroup string `json:"consumer_group" toml:"consumer_group"`
}

type SecurityConfig struct {
	TrustedOrigins []string `json:"trusted_origins" toml:"trusted_origins"`
	TrustedHeaders []string `json:"trusted_headers" toml:"trusted_headers"`
	TrustedProxies []string `json:"trusted_proxies" toml:"trusted_proxies"`
}
