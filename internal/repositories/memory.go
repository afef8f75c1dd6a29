package repositories

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/uptrace/bun"

	"github.com/ChatRelay/go-chat-relay/events"
	"github.com/ChatRelay/go-chat-relay/internal/store"
	"github.com/ChatRelay/go-chat-relay/models"
)

// In-memory repositories for single-process deployments and tests.
// Same change-event semantics as the Bun implementations: events are
// emitted only after the write has landed.

type MemoryPresenceRepository struct {
	mu      sync.RWMutex
	records map[string]models.PresenceRecord
	stream  *store.Stream
}

func NewMemoryPresenceRepository(stream *store.Stream) *MemoryPresenceRepository {
	return &MemoryPresenceRepository{
		records: make(map[string]models.PresenceRecord),
		stream:  stream,
	}
}

func (r *MemoryPresenceRepository) Upsert(ctx context.Context, record *models.PresenceRecord) (*models.PresenceRecord, error) {
	record.UpdatedAt = time.Now()

	r.mu.Lock()
	var previous *models.PresenceRecord
	if existing, ok := r.records[record.UserID]; ok {
		prior := existing
		previous = &prior
	}
	r.records[record.UserID] = *record
	r.mu.Unlock()

	if r.stream != nil {
		kind := models.ChangeInsert
		var prevPayload json.RawMessage
		if previous != nil {
			kind = models.ChangeUpdate
			prevPayload, _ = json.Marshal(previous)
		}
		payload, _ := json.Marshal(record)
		_ = r.stream.Publish(ctx, models.ChangeEvent{
			Topic:    store.Topic(events.TopicPresence, record.UserID),
			Kind:     kind,
			Payload:  payload,
			Previous: prevPayload,
			Origin:   store.OriginFromContext(ctx),
		})
	}

	return previous, nil
}

func (r *MemoryPresenceRepository) GetByUserID(ctx context.Context, userID string) (*models.PresenceRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if record, ok := r.records[userID]; ok {
		return &record, nil
	}
	return nil, nil
}

func (r *MemoryPresenceRepository) ListActiveSince(ctx context.Context, since time.Time) ([]models.PresenceRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var records []models.PresenceRecord
	for _, record := range r.records {
		if record.Status != models.StatusOffline && !record.LastActive.Before(since) {
			records = append(records, record)
		}
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].LastActive.After(records[j].LastActive)
	})
	return records, nil
}

func (r *MemoryPresenceRepository) WithTx(tx bun.IDB) PresenceRepository { return r }

// ------------------------------------

type MemoryFriendRequestRepository struct {
	mu       sync.RWMutex
	requests map[string]models.FriendRequest
	stream   *store.Stream
}

func NewMemoryFriendRequestRepository(stream *store.Stream) *MemoryFriendRequestRepository {
	return &MemoryFriendRequestRepository{
		requests: make(map[string]models.FriendRequest),
		stream:   stream,
	}
}

func (r *MemoryFriendRequestRepository) Create(ctx context.Context, request *models.FriendRequest) (*models.FriendRequest, error) {
	now := time.Now()
	request.CreatedAt = now
	request.UpdatedAt = now

	r.mu.Lock()
	r.requests[request.ID] = *request
	r.mu.Unlock()

	r.publish(ctx, models.ChangeInsert, request, nil)
	return request, nil
}

func (r *MemoryFriendRequestRepository) GetByID(ctx context.Context, id string) (*models.FriendRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if request, ok := r.requests[id]; ok {
		return &request, nil
	}
	return nil, nil
}

func (r *MemoryFriendRequestRepository) PendingBetween(ctx context.Context, a, b string) (*models.FriendRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, request := range r.requests {
		if request.Status != models.FriendRequestPending {
			continue
		}
		if (request.FromUser == a && request.ToUser == b) || (request.FromUser == b && request.ToUser == a) {
			found := request
			return &found, nil
		}
	}
	return nil, nil
}

func (r *MemoryFriendRequestRepository) ListPendingFor(ctx context.Context, userID string) ([]models.FriendRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var requests []models.FriendRequest
	for _, request := range r.requests {
		if request.ToUser == userID && request.Status == models.FriendRequestPending {
			requests = append(requests, request)
		}
	}
	sort.Slice(requests, func(i, j int) bool {
		return requests[i].CreatedAt.Before(requests[j].CreatedAt)
	})
	return requests, nil
}

func (r *MemoryFriendRequestRepository) UpdateStatus(ctx context.Context, id string, status models.FriendRequestStatus) (*models.FriendRequest, error) {
	r.mu.Lock()
	request, ok := r.requests[id]
	if !ok {
		r.mu.Unlock()
		return nil, models.ErrNotFound
	}
	prior := request
	request.Status = status
	request.UpdatedAt = time.Now()
	r.requests[id] = request
	r.mu.Unlock()

	r.publish(ctx, models.ChangeUpdate, &request, &prior)
	return &request, nil
}

func (r *MemoryFriendRequestRepository) WithTx(tx bun.IDB) FriendRequestRepository { return r }

func (r *MemoryFriendRequestRepository) publish(ctx context.Context, kind models.ChangeKind, request, previous *models.FriendRequest) {
	if r.stream == nil {
		return
	}
	payload, _ := json.Marshal(request)
	var prevPayload json.RawMessage
	if previous != nil {
		prevPayload, _ = json.Marshal(previous)
	}
	_ = r.stream.Publish(ctx, models.ChangeEvent{
		Topic:    store.Topic(events.TopicFriendRequests, request.ToUser),
		Kind:     kind,
		Payload:  payload,
		Previous: prevPayload,
		Origin:   store.OriginFromContext(ctx),
	})
}

// ------------------------------------

type MemoryFriendshipRepository struct {
	mu          sync.RWMutex
	friendships map[[2]string]models.Friendship
	stream      *store.Stream
}

func NewMemoryFriendshipRepository(stream *store.Stream) *MemoryFriendshipRepository {
	return &MemoryFriendshipRepository{
		friendships: make(map[[2]string]models.Friendship),
		stream:      stream,
	}
}

func (r *MemoryFriendshipRepository) Create(ctx context.Context, friendship *models.Friendship) (*models.Friendship, error) {
	key := [2]string{friendship.UserA, friendship.UserB}

	r.mu.Lock()
	if _, exists := r.friendships[key]; exists {
		r.mu.Unlock()
		return nil, models.ErrConflict
	}
	friendship.CreatedAt = time.Now()
	r.friendships[key] = *friendship
	r.mu.Unlock()

	if r.stream != nil {
		payload, _ := json.Marshal(friendship)
		origin := store.OriginFromContext(ctx)
		for _, userID := range []string{friendship.UserA, friendship.UserB} {
			_ = r.stream.Publish(ctx, models.ChangeEvent{
				Topic:   store.Topic(events.TopicFriendships, userID),
				Kind:    models.ChangeInsert,
				Payload: payload,
				Origin:  origin,
			})
		}
	}

	return friendship, nil
}

func (r *MemoryFriendshipRepository) Exists(ctx context.Context, a, b string) (bool, error) {
	userA, userB := models.CanonicalPair(a, b)
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.friendships[[2]string{userA, userB}]
	return ok, nil
}

func (r *MemoryFriendshipRepository) ListFor(ctx context.Context, userID string) ([]models.Friendship, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var friendships []models.Friendship
	for _, friendship := range r.friendships {
		if friendship.UserA == userID || friendship.UserB == userID {
			friendships = append(friendships, friendship)
		}
	}
	sort.Slice(friendships, func(i, j int) bool {
		return friendships[i].CreatedAt.After(friendships[j].CreatedAt)
	})
	return friendships, nil
}

func (r *MemoryFriendshipRepository) WithTx(tx bun.IDB) FriendshipRepository { return r }

// ------------------------------------

// MemoryUserDirectory resolves identities against a fixed or mutable set.
type MemoryUserDirectory struct {
	mu    sync.RWMutex
	users map[string]struct{}
}

func NewMemoryUserDirectory(userIDs ...string) *MemoryUserDirectory {
	d := &MemoryUserDirectory{users: make(map[string]struct{})}
	for _, id := range userIDs {
		d.users[id] = struct{}{}
	}
	return d
}

func (d *MemoryUserDirectory) Add(userID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[userID] = struct{}{}
}

func (d *MemoryUserDirectory) Exists(ctx context.Context, userID string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.users[userID]
	return ok, nil
}
