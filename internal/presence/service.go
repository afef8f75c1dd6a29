package presence

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ChatRelay/go-chat-relay/internal/repositories"
	"github.com/ChatRelay/go-chat-relay/models"
)

// Snapshot is the read-side view of one user's presence after liveness
// and visibility resolution. Invisible users read as offline to everyone
// else, and a record whose last_active went stale reads as offline even
// when no offline write ever landed.
type Snapshot struct {
	UserID     string                `json:"user_id"`
	Status     models.PresenceStatus `json:"status"`
	LastActive time.Time             `json:"last_active"`
	Activity   models.Activity       `json:"activity"`
}

// Service is the store-write side of presence tracking: every mutation is
// an upsert keyed on the user id, and the repository emits the change
// event after the write lands. The typing flag is debounced here, so it
// self-clears after TypingTimeout of silence no matter which transport
// the assertion arrived over.
type Service struct {
	repo   repositories.PresenceRepository
	config models.PresenceConfig
	logger models.Logger
	now    func() time.Time

	mu     sync.Mutex
	typing map[string]*typingEntry
	closed bool
}

type typingEntry struct {
	timer *time.Timer
	gen   int
}

func NewService(repo repositories.PresenceRepository, config models.PresenceConfig, logger models.Logger) *Service {
	return &Service{
		repo:   repo,
		config: config,
		logger: logger,
		now:    time.Now,
		typing: make(map[string]*typingEntry),
	}
}

// Heartbeat refreshes last_active and keeps the user's chosen status.
// A user whose record is absent or offline comes back as online; a
// heartbeat never overrides away, busy or invisible.
func (s *Service) Heartbeat(ctx context.Context, userID string) (*models.PresenceRecord, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: missing user id", models.ErrInvalidInput)
	}

	existing, err := s.repo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: loading presence: %v", models.ErrInternal, err)
	}

	record := &models.PresenceRecord{
		UserID:     userID,
		Status:     models.StatusOnline,
		LastActive: s.now(),
	}
	if existing != nil {
		record.Activity = existing.Activity
		if existing.Status != models.StatusOffline {
			record.Status = existing.Status
		}
	}

	if _, err := s.repo.Upsert(ctx, record); err != nil {
		return nil, fmt.Errorf("%w: writing presence: %v", models.ErrInternal, err)
	}
	return record, nil
}

// SetStatus writes an explicit status change. Offline clears the typing
// flag and disarms its debounce; every other status counts as activity
// and refreshes last_active.
func (s *Service) SetStatus(ctx context.Context, userID string, status models.PresenceStatus) (*models.PresenceRecord, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: missing user id", models.ErrInvalidInput)
	}
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", models.ErrInvalidInput, status)
	}

	existing, err := s.repo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: loading presence: %v", models.ErrInternal, err)
	}

	record := &models.PresenceRecord{
		UserID: userID,
		Status: status,
	}
	if existing != nil {
		record.Activity = existing.Activity
		record.LastActive = existing.LastActive
	}
	if status == models.StatusOffline {
		record.Activity.Typing = false
		s.disarmTyping(userID)
	} else {
		record.LastActive = s.now()
	}

	if _, err := s.repo.Upsert(ctx, record); err != nil {
		return nil, fmt.Errorf("%w: writing presence: %v", models.ErrInternal, err)
	}
	return record, nil
}

// SetTyping flips the typing flag. Asserting it counts as activity and
// arms the self-clear; every re-assertion within the quiet period pushes
// the deadline out.
func (s *Service) SetTyping(ctx context.Context, userID string, typing bool) (*models.PresenceRecord, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: missing user id", models.ErrInvalidInput)
	}

	existing, err := s.repo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: loading presence: %v", models.ErrInternal, err)
	}

	record := &models.PresenceRecord{
		UserID: userID,
		Status: models.StatusOnline,
	}
	if existing != nil {
		*record = *existing
	}
	record.Activity.Typing = typing
	if typing {
		record.LastActive = s.now()
		if record.Status == models.StatusOffline {
			record.Status = models.StatusOnline
		}
	}

	if _, err := s.repo.Upsert(ctx, record); err != nil {
		return nil, fmt.Errorf("%w: writing presence: %v", models.ErrInternal, err)
	}

	if typing {
		s.armTyping(userID)
	} else {
		s.disarmTyping(userID)
	}
	return record, nil
}

func (s *Service) armTyping(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	entry := s.typing[userID]
	if entry == nil {
		entry = &typingEntry{}
		s.typing[userID] = entry
	}
	if entry.timer != nil {
		entry.timer.Stop()
	}
	entry.gen++

	gen := entry.gen
	entry.timer = time.AfterFunc(s.config.TypingTimeout, func() {
		s.clearTyping(userID, gen)
	})
}

func (s *Service) disarmTyping(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.typing[userID]; ok {
		if entry.timer != nil {
			entry.timer.Stop()
		}
		delete(s.typing, userID)
	}
}

func (s *Service) clearTyping(userID string, gen int) {
	s.mu.Lock()
	entry, ok := s.typing[userID]
	if !ok || entry.gen != gen {
		// A fresh assertion superseded this deadline.
		s.mu.Unlock()
		return
	}
	delete(s.typing, userID)
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := s.SetTyping(ctx, userID, false); err != nil {
		s.logger.Warn("failed to clear typing flag",
			"error", err,
			"user_id", userID,
		)
	}
}

// Get resolves the public presence view for one user. Unknown users read
// as offline rather than not-found: absence of a row is itself a state.
func (s *Service) Get(ctx context.Context, userID string) (*Snapshot, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: missing user id", models.ErrInvalidInput)
	}

	record, err := s.repo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: loading presence: %v", models.ErrInternal, err)
	}
	if record == nil {
		return &Snapshot{UserID: userID, Status: models.StatusOffline}, nil
	}
	return s.snapshot(record), nil
}

// Online lists users currently readable as online-ish (anything except
// offline and invisible), most recently active first.
func (s *Service) Online(ctx context.Context) ([]Snapshot, error) {
	since := s.now().Add(-s.config.OfflineThreshold)
	records, err := s.repo.ListActiveSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("%w: listing presence: %v", models.ErrInternal, err)
	}

	snapshots := make([]Snapshot, 0, len(records))
	for i := range records {
		snap := s.snapshot(&records[i])
		if snap.Status == models.StatusOffline {
			continue
		}
		snapshots = append(snapshots, *snap)
	}
	return snapshots, nil
}

// Close disarms outstanding typing deadlines. Pending flags are left to
// staleness inference.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for userID, entry := range s.typing {
		if entry.timer != nil {
			entry.timer.Stop()
		}
		delete(s.typing, userID)
	}
}

func (s *Service) snapshot(record *models.PresenceRecord) *Snapshot {
	status := record.EffectiveStatus(s.now(), s.config.OfflineThreshold)
	if status == models.StatusInvisible {
		status = models.StatusOffline
	}

	snap := &Snapshot{
		UserID:     record.UserID,
		Status:     status,
		LastActive: record.LastActive,
		Activity:   record.Activity,
	}
	if status == models.StatusOffline {
		snap.Activity.Typing = false
	}
	return snap
}
