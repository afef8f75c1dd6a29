package presence

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ChatRelay/go-chat-relay/events"
	"github.com/ChatRelay/go-chat-relay/internal/store"
	"github.com/ChatRelay/go-chat-relay/models"
)

// Transition classifies what one presence change event means to an
// observer: a user coming online, going offline, or an in-place change
// (status switch, typing flag, refreshed last_active).
type Transition string

const (
	TransitionOnline  Transition = "online"
	TransitionOffline Transition = "offline"
	TransitionUpdate  Transition = "update"
)

// Classify derives the transition from a presence change event by
// comparing the previous snapshot against the new one. An insert with no
// previous snapshot counts as coming online unless the first write is
// already offline.
func Classify(event models.ChangeEvent) (Transition, *models.PresenceRecord, error) {
	var record models.PresenceRecord
	if err := json.Unmarshal(event.Payload, &record); err != nil {
		return "", nil, fmt.Errorf("decoding presence payload: %w", err)
	}

	wasOffline := true
	if len(event.Previous) > 0 {
		var previous models.PresenceRecord
		if err := json.Unmarshal(event.Previous, &previous); err != nil {
			return "", nil, fmt.Errorf("decoding previous presence payload: %w", err)
		}
		wasOffline = previous.Status == models.StatusOffline
	}
	isOffline := record.Status == models.StatusOffline

	switch {
	case wasOffline && !isOffline:
		return TransitionOnline, &record, nil
	case !wasOffline && isOffline:
		return TransitionOffline, &record, nil
	default:
		return TransitionUpdate, &record, nil
	}
}

// WatchHandler receives classified presence transitions for one user.
type WatchHandler func(transition Transition, record *models.PresenceRecord)

// Watcher follows one user's presence topic on the change stream and
// hands classified transitions to its handler.
type Watcher struct {
	stream *store.Stream
	logger models.Logger
}

func NewWatcher(stream *store.Stream, logger models.Logger) *Watcher {
	return &Watcher{stream: stream, logger: logger}
}

// Watch subscribes to userID's presence changes. The returned subscription
// must be closed when the observer goes away.
func (w *Watcher) Watch(ctx context.Context, userID string, handler WatchHandler) (*store.Subscription, error) {
	if handler == nil {
		return nil, fmt.Errorf("presence: watch handler must not be nil")
	}

	return w.stream.Subscribe(ctx, store.Topic(events.TopicPresence, userID), func(event models.ChangeEvent) {
		transition, record, err := Classify(event)
		if err != nil {
			w.logger.Error("failed to classify presence change",
				"error", err,
				"user_id", userID,
				"event_id", event.ID,
			)
			return
		}
		handler(transition, record)
	})
}
