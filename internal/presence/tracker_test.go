package presence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChatRelay/go-chat-relay/internal/repositories"
	"github.com/ChatRelay/go-chat-relay/internal/util"
	"github.com/ChatRelay/go-chat-relay/models"
)

func newTestTracker(t *testing.T, config models.PresenceConfig) (*Tracker, *Service) {
	t.Helper()
	service := NewService(
		repositories.NewMemoryPresenceRepository(nil),
		config,
		util.NewMockLogger(),
	)
	tracker := NewTracker(service, "alice", config, util.NewMockLogger())
	return tracker, service
}

func TestTrackerLifecycle(t *testing.T) {
	ctx := context.Background()
	config := models.PresenceConfig{
		HeartbeatInterval: 10 * time.Millisecond,
		TypingTimeout:     20 * time.Millisecond,
		OfflineThreshold:  time.Second,
	}

	tracker, service := newTestTracker(t, config)
	require.NoError(t, tracker.Start(ctx))

	snap, err := service.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.StatusOnline, snap.Status)

	// The loop keeps last_active moving.
	var first time.Time
	require.Eventually(t, func() bool {
		snap, err := service.Get(ctx, "alice")
		if err != nil {
			return false
		}
		if first.IsZero() {
			first = snap.LastActive
			return false
		}
		return snap.LastActive.After(first)
	}, time.Second, 5*time.Millisecond)

	tracker.Close()

	snap, err = service.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.StatusOffline, snap.Status)

	// Close is idempotent.
	tracker.Close()
}

func TestTrackerVisibility(t *testing.T) {
	ctx := context.Background()
	config := models.PresenceConfig{
		HeartbeatInterval: time.Minute,
		TypingTimeout:     time.Minute,
		OfflineThreshold:  time.Minute,
	}

	tracker, service := newTestTracker(t, config)
	require.NoError(t, tracker.Start(ctx))
	defer tracker.Close()

	_, err := service.SetStatus(ctx, "alice", models.StatusBusy)
	require.NoError(t, err)

	require.NoError(t, tracker.MarkHidden(ctx))
	snap, err := service.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.StatusAway, snap.Status)

	// Hiding twice does not overwrite the remembered status.
	require.NoError(t, tracker.MarkHidden(ctx))

	require.NoError(t, tracker.MarkVisible(ctx))
	snap, err = service.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.StatusBusy, snap.Status)

	// Becoming visible without a prior hide is a no-op.
	require.NoError(t, tracker.MarkVisible(ctx))
}

func TestTrackerHeartbeatSuspendedWhileHidden(t *testing.T) {
	ctx := context.Background()
	config := models.PresenceConfig{
		HeartbeatInterval: 10 * time.Millisecond,
		TypingTimeout:     time.Minute,
		OfflineThreshold:  time.Minute,
	}

	tracker, service := newTestTracker(t, config)
	require.NoError(t, tracker.Start(ctx))
	defer tracker.Close()

	require.NoError(t, tracker.MarkHidden(ctx))

	// Let any tick that raced the transition drain first.
	time.Sleep(15 * time.Millisecond)
	snap, err := service.Get(ctx, "alice")
	require.NoError(t, err)
	hiddenAt := snap.LastActive

	// No heartbeat writes land while hidden.
	time.Sleep(50 * time.Millisecond)
	snap, err = service.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, hiddenAt, snap.LastActive)

	// Becoming visible writes immediately.
	require.NoError(t, tracker.MarkVisible(ctx))
	snap, err = service.Get(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, snap.LastActive.After(hiddenAt))
}

func TestTrackerTypingDebounce(t *testing.T) {
	ctx := context.Background()
	config := models.PresenceConfig{
		HeartbeatInterval: time.Minute,
		TypingTimeout:     30 * time.Millisecond,
		OfflineThreshold:  time.Minute,
	}

	tracker, service := newTestTracker(t, config)
	require.NoError(t, tracker.Start(ctx))
	defer tracker.Close()

	require.NoError(t, tracker.Typing(ctx))
	snap, err := service.Get(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, snap.Activity.Typing)

	// Repeated typing keeps the flag set past the first deadline.
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, tracker.Typing(ctx))
	time.Sleep(20 * time.Millisecond)
	snap, err = service.Get(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, snap.Activity.Typing)

	// Silence clears it.
	require.Eventually(t, func() bool {
		snap, err := service.Get(ctx, "alice")
		return err == nil && !snap.Activity.Typing
	}, time.Second, 5*time.Millisecond)
}
