package presence

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internalevents "github.com/ChatRelay/go-chat-relay/internal/events"
	"github.com/ChatRelay/go-chat-relay/internal/repositories"
	"github.com/ChatRelay/go-chat-relay/internal/store"
	"github.com/ChatRelay/go-chat-relay/internal/util"
	"github.com/ChatRelay/go-chat-relay/models"
)

func marshalRecord(t *testing.T, record models.PresenceRecord) json.RawMessage {
	t.Helper()
	payload, err := json.Marshal(record)
	require.NoError(t, err)
	return payload
}

func TestClassify(t *testing.T) {
	online := models.PresenceRecord{UserID: "alice", Status: models.StatusOnline}
	busy := models.PresenceRecord{UserID: "alice", Status: models.StatusBusy}
	offline := models.PresenceRecord{UserID: "alice", Status: models.StatusOffline}

	t.Run("first write is coming online", func(t *testing.T) {
		transition, record, err := Classify(models.ChangeEvent{
			Kind:    models.ChangeInsert,
			Payload: marshalRecord(t, online),
		})
		require.NoError(t, err)
		assert.Equal(t, TransitionOnline, transition)
		assert.Equal(t, "alice", record.UserID)
	})

	t.Run("offline to online", func(t *testing.T) {
		transition, _, err := Classify(models.ChangeEvent{
			Kind:     models.ChangeUpdate,
			Payload:  marshalRecord(t, online),
			Previous: marshalRecord(t, offline),
		})
		require.NoError(t, err)
		assert.Equal(t, TransitionOnline, transition)
	})

	t.Run("online to offline", func(t *testing.T) {
		transition, _, err := Classify(models.ChangeEvent{
			Kind:     models.ChangeUpdate,
			Payload:  marshalRecord(t, offline),
			Previous: marshalRecord(t, online),
		})
		require.NoError(t, err)
		assert.Equal(t, TransitionOffline, transition)
	})

	t.Run("status switch is an update", func(t *testing.T) {
		transition, _, err := Classify(models.ChangeEvent{
			Kind:     models.ChangeUpdate,
			Payload:  marshalRecord(t, busy),
			Previous: marshalRecord(t, online),
		})
		require.NoError(t, err)
		assert.Equal(t, TransitionUpdate, transition)
	})

	t.Run("first write already offline is an update", func(t *testing.T) {
		transition, _, err := Classify(models.ChangeEvent{
			Kind:    models.ChangeInsert,
			Payload: marshalRecord(t, offline),
		})
		require.NoError(t, err)
		assert.Equal(t, TransitionUpdate, transition)
	})

	t.Run("garbage payload", func(t *testing.T) {
		_, _, err := Classify(models.ChangeEvent{Payload: json.RawMessage(`{`)})
		assert.Error(t, err)
	})
}

func TestWatcher(t *testing.T) {
	ctx := context.Background()
	logger := util.NewMockLogger()

	pubsub := internalevents.NewGoChannelPubSub(nil, 16)
	defer pubsub.Close()

	stream := store.NewStream(pubsub, logger, "test")
	repo := repositories.NewMemoryPresenceRepository(stream)
	service := NewService(repo, testConfig(), logger)

	var mu sync.Mutex
	var transitions []Transition

	watcher := NewWatcher(stream, logger)
	sub, err := watcher.Watch(ctx, "alice", func(transition Transition, record *models.PresenceRecord) {
		mu.Lock()
		transitions = append(transitions, transition)
		mu.Unlock()
	})
	require.NoError(t, err)
	defer sub.Close()

	_, err = service.Heartbeat(ctx, "alice")
	require.NoError(t, err)
	_, err = service.SetStatus(ctx, "alice", models.StatusBusy)
	require.NoError(t, err)
	_, err = service.SetStatus(ctx, "alice", models.StatusOffline)
	require.NoError(t, err)

	// Other users never reach this watcher.
	_, err = service.Heartbeat(ctx, "bob")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(transitions) == 3
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []Transition{TransitionOnline, TransitionUpdate, TransitionOffline}, transitions)
}
