package models

import (
	"context"
	"encoding/json"
	"time"
)

// ChangeKind classifies a store-side mutation.
type ChangeKind string

const (
	ChangeInsert ChangeKind = "insert"
	ChangeUpdate ChangeKind = "update"
	ChangeDelete ChangeKind = "delete"
)

// ChangeEvent is one row-level mutation emitted by the store's
// change-notification stream. Ephemeral; never persisted by this subsystem.
type ChangeEvent struct {
	ID        string          `json:"id"`
	Topic     string          `json:"topic"`
	Kind      ChangeKind      `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	Previous  json.RawMessage `json:"previous,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	// Origin identifies the execution context that caused the mutation,
	// so a context relaying the event over the broadcast bus can be
	// ignored by itself.
	Origin string `json:"origin,omitempty"`
}

// Message represents a message in the pub/sub system.
type Message struct {
	UUID     string
	Payload  []byte
	Metadata map[string]string
}

// PubSub is a generic publish-subscribe primitive addressed by topic name.
// Both the store change stream and the cross-context broadcast bus are
// expressed through it, so tests can inject an in-process double.
type PubSub interface {
	// Publish sends a message to the specified topic
	Publish(ctx context.Context, topic string, msg *Message) error

	// Subscribe returns a channel that receives messages from the specified
	// topic. The channel is closed when the subscription is cancelled.
	Subscribe(ctx context.Context, topic string) (<-chan *Message, error)

	// Close closes the pub/sub and cleans up resources
	Close() error
}
