package presence

import (
	"context"
	"sync"
	"time"

	"github.com/ChatRelay/go-chat-relay/models"
)

// Tracker is the per-connection presence state machine. One tracker per
// connected session: it re-asserts liveness on a heartbeat interval,
// follows visibility transitions, debounces the typing flag, and writes a
// best-effort offline on teardown.
type Tracker struct {
	service *Service
	userID  string
	config  models.PresenceConfig
	logger  models.Logger

	mu          sync.Mutex
	hidden      bool
	priorStatus models.PresenceStatus
	closed      bool

	cancel context.CancelFunc
	done   chan struct{}
}

// NewTracker builds a tracker for one user session. Start must be called
// before the heartbeat loop runs.
func NewTracker(service *Service, userID string, config models.PresenceConfig, logger models.Logger) *Tracker {
	return &Tracker{
		service:     service,
		userID:      userID,
		config:      config,
		logger:      logger,
		priorStatus: models.StatusOnline,
		done:        make(chan struct{}),
	}
}

// Start writes the initial online state and launches the heartbeat loop.
// The loop stops when ctx is cancelled or Close is called.
func (t *Tracker) Start(ctx context.Context) error {
	if _, err := t.service.SetStatus(ctx, t.userID, models.StatusOnline); err != nil {
		return err
	}

	loopCtx, cancel := context.WithCancel(ctx)

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		cancel()
		return nil
	}
	t.cancel = cancel
	t.mu.Unlock()

	go t.heartbeatLoop(loopCtx)
	return nil
}

func (t *Tracker) heartbeatLoop(ctx context.Context) {
	defer close(t.done)

	ticker := time.NewTicker(t.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.mu.Lock()
			hidden := t.hidden
			t.mu.Unlock()
			if hidden {
				// Heartbeats stay suspended while the surface is in the
				// background; staleness inference takes over from here.
				continue
			}
			if _, err := t.service.Heartbeat(ctx, t.userID); err != nil {
				// Transient store failures are survivable; the next tick
				// retries and readers infer offline only past the
				// staleness threshold.
				t.logger.Warn("presence heartbeat failed",
					"error", err,
					"user_id", t.userID,
				)
			}
		}
	}
}

// MarkHidden records that the session's surface went to the background.
// The user's chosen status is remembered so MarkVisible can restore it.
func (t *Tracker) MarkHidden(ctx context.Context) error {
	t.mu.Lock()
	if t.closed || t.hidden {
		t.mu.Unlock()
		return nil
	}
	t.hidden = true
	t.mu.Unlock()

	current, err := t.service.Get(ctx, t.userID)
	if err == nil && current.Status != models.StatusOffline && current.Status != models.StatusAway {
		t.mu.Lock()
		t.priorStatus = current.Status
		t.mu.Unlock()
	}

	_, err = t.service.SetStatus(ctx, t.userID, models.StatusAway)
	return err
}

// MarkVisible restores the status held before the session was hidden.
func (t *Tracker) MarkVisible(ctx context.Context) error {
	t.mu.Lock()
	if t.closed || !t.hidden {
		t.mu.Unlock()
		return nil
	}
	t.hidden = false
	restore := t.priorStatus
	t.mu.Unlock()

	_, err := t.service.SetStatus(ctx, t.userID, restore)
	return err
}

// Typing asserts the typing flag. The service owns the debounce: every
// assertion within the quiet period pushes the self-clear further out.
func (t *Tracker) Typing(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	_, err := t.service.SetTyping(ctx, t.userID, true)
	return err
}

// Close stops the heartbeat loop and writes a best-effort offline. The
// write may be lost on a crash; readers fall back to staleness inference,
// so Close never blocks for long and never fails.
func (t *Tracker) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	cancel := t.cancel
	t.mu.Unlock()

	if cancel != nil {
		cancel()
		<-t.done
	}

	ctx, cancelWrite := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelWrite()
	if _, err := t.service.SetStatus(ctx, t.userID, models.StatusOffline); err != nil {
		t.logger.Warn("best-effort offline write failed",
			"error", err,
			"user_id", t.userID,
		)
	}
}
