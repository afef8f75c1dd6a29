package config

import (
	"os"
	"time"

	"github.com/ChatRelay/go-chat-relay/env"
	"github.com/ChatRelay/go-chat-relay/events"
	"github.com/ChatRelay/go-chat-relay/models"
)

type ConfigOption func(*models.Config)

// NewConfig builds a Config using functional options with sensible defaults.
func NewConfig(options ...ConfigOption) *models.Config {
	config := &models.Config{
		AppName:  "GoChatRelay",
		BaseURL:  "http://localhost:8080",
		BasePath: "/relay",
		Database: models.DatabaseConfig{
			Provider:        "postgres",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: time.Hour,
		},
		Logger: models.LoggerConfig{
			Level: "info",
		},
		Presence: models.PresenceConfig{
			HeartbeatInterval: 30 * time.Second,
			TypingTimeout:     3 * time.Second,
			OfflineThreshold:  90 * time.Second,
		},
		RateLimit: models.RateLimitConfig{
			Provider: "memory",
			// Message posting: tight window, few requests.
			Messages: models.RateLimitRule{Window: 10 * time.Second, Max: 10, Prefix: "rl:msg:"},
			// Authentication attempts: longer window, few requests.
			Auth: models.RateLimitRule{Window: 15 * time.Minute, Max: 5, Prefix: "rl:auth:"},
			// Friend requests: longer window, moderate requests.
			FriendRequests: models.RateLimitRule{Window: time.Hour, Max: 30, Prefix: "rl:friend:"},
			// Presence writes: generous, heartbeats are periodic.
			Presence: models.RateLimitRule{Window: time.Minute, Max: 120, Prefix: "rl:presence:"},
		},
		EventBus: models.EventBusConfig{
			Prefix:     "relay",
			BufferSize: 100,
			Provider:   events.ProviderGoChannel.String(),
		},
	}

	if url := os.Getenv(env.EnvDatabaseURL); url != "" {
		config.Database.URL = url
	}
	if url := os.Getenv(env.EnvRedisURL); url != "" {
		redis := &models.RedisConfig{URL: url}
		config.EventBus.Redis = redis
		config.RateLimit.Redis = redis
	}

	for _, option := range options {
		option(config)
	}

	return config
}

func WithAppName(name string) ConfigOption {
	return func(c *models.Config) { c.AppName = name }
}

func WithBaseURL(url string) ConfigOption {
	return func(c *models.Config) { c.BaseURL = url }
}

func WithBasePath(path string) ConfigOption {
	return func(c *models.Config) { c.BasePath = path }
}

func WithDatabase(db models.DatabaseConfig) ConfigOption {
	return func(c *models.Config) { c.Database = db }
}

func WithPresence(p models.PresenceConfig) ConfigOption {
	return func(c *models.Config) { c.Presence = p }
}

func WithRateLimit(rl models.RateLimitConfig) ConfigOption {
	return func(c *models.Config) { c.RateLimit = rl }
}

func WithEventBus(eb models.EventBusConfig) ConfigOption {
	return func(c *models.Config) { c.EventBus = eb }
}

func WithLogLevel(level string) ConfigOption {
	return func(c *models.Config) { c.Logger.Level = level }
}
