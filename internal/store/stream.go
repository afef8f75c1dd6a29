package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ChatRelay/go-chat-relay/models"
)

// Topic addresses one logical change feed: an entity type plus the id of
// the row (or owning user) whose changes the subscriber cares about.
// Filtering happens at the topic level, so a subscriber only ever receives
// events matching its id.
func Topic(entity, id string) string {
	return fmt.Sprintf("change.%s.%s", entity, id)
}

// Stream is the change-notification side of the store adapter: writers
// publish a ChangeEvent after a commit, subscribers receive the events for
// one topic in emission order.
type Stream struct {
	pubsub models.PubSub
	logger models.Logger
	prefix string
}

// NewStream wraps a PubSub as a change stream. The PubSub is an explicit
// dependency so tests can drive delivery directly.
func NewStream(pubsub models.PubSub, logger models.Logger, prefix string) *Stream {
	return &Stream{pubsub: pubsub, logger: logger, prefix: prefix}
}

func (s *Stream) topic(name string) string {
	if s.prefix == "" {
		return name
	}
	return s.prefix + "." + name
}

// Publish emits a change event on its topic. Called by repositories after
// the corresponding write has committed, never before.
func (s *Stream) Publish(ctx context.Context, event models.ChangeEvent) error {
	if event.Topic == "" {
		return fmt.Errorf("store: change event topic must not be empty")
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return s.pubsub.Publish(ctx, s.topic(event.Topic), &models.Message{
		UUID:    event.ID,
		Payload: payload,
		Metadata: map[string]string{
			"topic": event.Topic,
			"kind":  string(event.Kind),
		},
	})
}

// Handler consumes one change event.
type Handler func(event models.ChangeEvent)

// Subscription is the disposer handle for one topic subscription.
// Close releases the underlying stream subscription; a leaked subscription
// keeps consuming notification bandwidth and invoking stale handlers.
type Subscription struct {
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// Close tears the subscription down and waits for the consumer loop to
// stop, so no handler fires against a torn-down context afterwards.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		<-s.done
	})
}

// Subscribe registers a handler for one topic. Events are delivered to the
// handler sequentially in the order the stream emits them; no ordering is
// guaranteed across different topics.
func (s *Stream) Subscribe(ctx context.Context, topicName string, handler Handler) (*Subscription, error) {
	if handler == nil {
		return nil, fmt.Errorf("store: handler must not be nil")
	}

	subCtx, cancel := context.WithCancel(ctx)
	ch, err := s.pubsub.Subscribe(subCtx, s.topic(topicName))
	if err != nil {
		cancel()
		return nil, err
	}

	sub := &Subscription{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(sub.done)
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var event models.ChangeEvent
				if err := json.Unmarshal(msg.Payload, &event); err != nil {
					s.logger.Error("failed to unmarshal change event",
						"error", err,
						"topic", topicName,
						"message_id", msg.UUID,
					)
					continue
				}
				handler(event)
			}
		}
	}()

	return sub, nil
}
