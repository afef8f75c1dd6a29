package events

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"

	"github.com/ChatRelay/go-chat-relay/env"
	"github.com/ChatRelay/go-chat-relay/events"
	"github.com/ChatRelay/go-chat-relay/models"
)

// InitProvider initializes a PubSub based on the event bus config.
// GoChannel serves a single process; Redis streams serve multi-process
// deployments where change events must cross instances.
func InitProvider(config *models.EventBusConfig, logger watermill.LoggerAdapter) (models.PubSub, error) {
	if logger == nil {
		logger = watermill.NewStdLogger(false, false)
	}

	provider := events.BusProvider(config.Provider)

	switch provider {
	case events.ProviderGoChannel, "":
		return initGoChannel(logger, config.BufferSize), nil
	case events.ProviderRedis:
		return initRedis(logger, config.Redis)
	default:
		return nil, fmt.Errorf("unsupported event bus provider: %s", config.Provider)
	}
}

// NewGoChannelPubSub builds an in-process PubSub. It is also what tests
// inject in place of a real multi-context broadcast environment.
func NewGoChannelPubSub(logger watermill.LoggerAdapter, bufferSize int) models.PubSub {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	return initGoChannel(logger, bufferSize)
}

func initGoChannel(logger watermill.LoggerAdapter, bufferSize int) models.PubSub {
	if bufferSize <= 0 {
		bufferSize = 100
	}

	pubSub := gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer:            int64(bufferSize),
			Persistent:                     false,
			BlockPublishUntilSubscriberAck: false,
		},
		logger,
	)

	return NewWatermillPubSub(pubSub, pubSub)
}

func initRedis(logger watermill.LoggerAdapter, config *models.RedisConfig) (models.PubSub, error) {
	url := os.Getenv(env.EnvRedisURL)
	if url == "" && config != nil {
		url = config.URL
	}
	if url == "" {
		return nil, fmt.Errorf("redis event bus requires a URL")
	}

	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis URL: %w", err)
	}
	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", url, err)
	}

	consumerGroup := os.Getenv(env.EnvEventBusConsumerGroup)
	if consumerGroup == "" && config != nil {
		consumerGroup = config.ConsumerGroup
	}

	subscriber, err := redisstream.NewSubscriber(
		redisstream.SubscriberConfig{
			Client:        client,
			ConsumerGroup: consumerGroup,
		},
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis subscriber: %w", err)
	}

	publisher, err := redisstream.NewPublisher(
		redisstream.PublisherConfig{
			Client: client,
		},
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis publisher: %w", err)
	}

	return NewWatermillPubSub(publisher, subscriber), nil
}
