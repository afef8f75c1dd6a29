package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ChatRelay/go-chat-relay/internal/store"
	"github.com/ChatRelay/go-chat-relay/models"
)

// Handler consumes one fanned-out change event.
type Handler func(event models.ChangeEvent)

// Registration is the disposer handle for one registered handler.
type Registration struct {
	once  sync.Once
	close func()
}

func (r *Registration) Close() {
	r.once.Do(r.close)
}

// Options wires one channel. Stream and Bus are explicit dependencies:
// the stream carries this context's own store changes, the bus carries
// changes relayed from sibling contexts.
type Options struct {
	// Topic is the change-feed topic this channel fans out.
	Topic string
	// Stream is the local store change stream.
	Stream *store.Stream
	// Bus is the cross-context broadcast bus. Nil disables relaying, which
	// is correct for a strictly single-context deployment.
	Bus models.PubSub
	// Origin identifies this execution context. Events this context caused
	// are relayed onto the bus; events arriving from the bus with this
	// origin are our own relays echoed back and are dropped.
	Origin string
	// HistorySize bounds the dedupe window. Defaults to 256 event ids.
	HistorySize int

	Logger models.Logger
}

// Channel fans one topic's change events out to locally registered
// handlers exactly once each, in emission order, merging the local store
// stream with events relayed from other contexts over the broadcast bus.
type Channel struct {
	topic  string
	bus    models.PubSub
	origin string
	logger models.Logger

	mu       sync.Mutex
	handlers map[models.ChangeKind][]*handlerEntry
	nextID   int
	seen     *recentIDs
	closed   bool

	streamSub *store.Subscription
	busCancel context.CancelFunc
	busDone   chan struct{}
}

type handlerEntry struct {
	id      int
	handler Handler
}

// Open subscribes the channel to its topic on both the stream and the
// bus. The channel delivers events until Close.
func Open(ctx context.Context, opts Options) (*Channel, error) {
	if opts.Topic == "" {
		return nil, fmt.Errorf("fanout: topic must not be empty")
	}
	if opts.Stream == nil {
		return nil, fmt.Errorf("fanout: stream must not be nil")
	}
	if opts.HistorySize <= 0 {
		opts.HistorySize = 256
	}

	c := &Channel{
		topic:    opts.Topic,
		bus:      opts.Bus,
		origin:   opts.Origin,
		logger:   opts.Logger,
		handlers: make(map[models.ChangeKind][]*handlerEntry),
		seen:     newRecentIDs(opts.HistorySize),
	}

	streamSub, err := opts.Stream.Subscribe(ctx, opts.Topic, c.handleLocal)
	if err != nil {
		return nil, err
	}
	c.streamSub = streamSub

	if c.bus != nil {
		busCtx, cancel := context.WithCancel(ctx)
		ch, err := c.bus.Subscribe(busCtx, c.busTopic())
		if err != nil {
			cancel()
			streamSub.Close()
			return nil, err
		}
		c.busCancel = cancel
		c.busDone = make(chan struct{})
		go c.consumeBus(busCtx, ch)
	}

	return c, nil
}

func (c *Channel) busTopic() string {
	return "fanout." + c.topic
}

// OnInsert registers a handler for insert events. Handlers run
// synchronously in registration order; the returned handle unregisters.
func (c *Channel) OnInsert(handler Handler) *Registration {
	return c.on(models.ChangeInsert, handler)
}

func (c *Channel) OnUpdate(handler Handler) *Registration {
	return c.on(models.ChangeUpdate, handler)
}

func (c *Channel) OnDelete(handler Handler) *Registration {
	return c.on(models.ChangeDelete, handler)
}

func (c *Channel) on(kind models.ChangeKind, handler Handler) *Registration {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	entry := &handlerEntry{id: c.nextID, handler: handler}
	c.handlers[kind] = append(c.handlers[kind], entry)

	id := entry.id
	return &Registration{close: func() { c.remove(kind, id) }}
}

func (c *Channel) remove(kind models.ChangeKind, id int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries := c.handlers[kind]
	for i, entry := range entries {
		if entry.id == id {
			c.handlers[kind] = append(entries[:i:i], entries[i+1:]...)
			return
		}
	}
}

// handleLocal receives events from this context's own store stream.
func (c *Channel) handleLocal(event models.ChangeEvent) {
	if !c.dispatch(event) {
		return
	}

	// Only the context that caused the write relays it, so each event
	// crosses the bus exactly once no matter how many contexts listen.
	if c.bus != nil && event.Origin == c.origin {
		c.relay(event)
	}
}

func (c *Channel) relay(event models.ChangeEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		c.logger.Error("failed to marshal event for relay",
			"error", err,
			"topic", c.topic,
			"event_id", event.ID,
		)
		return
	}

	err = c.bus.Publish(context.Background(), c.busTopic(), &models.Message{
		UUID:    event.ID,
		Payload: payload,
		Metadata: map[string]string{
			"origin": event.Origin,
			"kind":   string(event.Kind),
		},
	})
	if err != nil {
		c.logger.Error("failed to relay event",
			"error", err,
			"topic", c.topic,
			"event_id", event.ID,
		)
	}
}

func (c *Channel) consumeBus(ctx context.Context, ch <-chan *models.Message) {
	defer close(c.busDone)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var event models.ChangeEvent
			if err := json.Unmarshal(msg.Payload, &event); err != nil {
				c.logger.Error("failed to unmarshal relayed event",
					"error", err,
					"topic", c.topic,
					"message_id", msg.UUID,
				)
				continue
			}
			// Our own relay echoed back.
			if event.Origin != "" && event.Origin == c.origin {
				continue
			}
			c.dispatch(event)
		}
	}
}

// dispatch delivers the event to matching handlers at most once. Returns
// whether the event was fresh.
func (c *Channel) dispatch(event models.ChangeEvent) bool {
	c.mu.Lock()
	if c.closed || !c.seen.add(event.ID) {
		c.mu.Unlock()
		return false
	}
	entries := append([]*handlerEntry(nil), c.handlers[event.Kind]...)
	c.mu.Unlock()

	for _, entry := range entries {
		entry.handler(event)
	}
	return true
}

// Close tears down both subscriptions and stops delivery. Safe to call
// more than once.
func (c *Channel) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.streamSub.Close()
	if c.busCancel != nil {
		c.busCancel()
		<-c.busDone
	}
}

// ------------------------------------

// recentIDs is a fixed-size set of the most recently seen event ids.
// Old entries are evicted in insertion order once the window is full.
type recentIDs struct {
	capacity int
	order    []string
	head     int
	ids      map[string]struct{}
}

func newRecentIDs(capacity int) *recentIDs {
	return &recentIDs{
		capacity: capacity,
		order:    make([]string, 0, capacity),
		ids:      make(map[string]struct{}, capacity),
	}
}

// add records the id, reporting whether it was unseen.
func (r *recentIDs) add(id string) bool {
	if _, ok := r.ids[id]; ok {
		return false
	}

	if len(r.order) < r.capacity {
		r.order = append(r.order, id)
	} else {
		delete(r.ids, r.order[r.head])
		r.order[r.head] = id
		r.head = (r.head + 1) % r.capacity
	}
	r.ids[id] = struct{}{}
	return true
}
