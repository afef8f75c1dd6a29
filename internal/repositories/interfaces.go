package repositories

import (
	"context"
	"time"

	"github.com/uptrace/bun"

	"github.com/ChatRelay/go-chat-relay/models"
)

// Repository interfaces for data access. Writes go through here; change
// events are emitted on the store stream after the commit, never before.

type PresenceRepository interface {
	// Upsert writes the record keyed on UserID, returning the prior
	// snapshot (nil on first write).
	Upsert(ctx context.Context, record *models.PresenceRecord) (*models.PresenceRecord, error)
	GetByUserID(ctx context.Context, userID string) (*models.PresenceRecord, error)
	ListActiveSince(ctx context.Context, since time.Time) ([]models.PresenceRecord, error)
	WithTx(tx bun.IDB) PresenceRepository
}

type FriendRequestRepository interface {
	Create(ctx context.Context, request *models.FriendRequest) (*models.FriendRequest, error)
	GetByID(ctx context.Context, id string) (*models.FriendRequest, error)
	// PendingBetween finds a pending request in either direction for the
	// unordered pair, or nil.
	PendingBetween(ctx context.Context, a, b string) (*models.FriendRequest, error)
	ListPendingFor(ctx context.Context, userID string) ([]models.FriendRequest, error)
	UpdateStatus(ctx context.Context, id string, status models.FriendRequestStatus) (*models.FriendRequest, error)
	WithTx(tx bun.IDB) FriendRequestRepository
}

type FriendshipRepository interface {
	// Create inserts the canonical pair. The caller is responsible for
	// ordering via models.CanonicalPair.
	Create(ctx context.Context, friendship *models.Friendship) (*models.Friendship, error)
	Exists(ctx context.Context, a, b string) (bool, error)
	ListFor(ctx context.Context, userID string) ([]models.Friendship, error)
	WithTx(tx bun.IDB) FriendshipRepository
}

// UserDirectory resolves whether an identity exists. Profile data is out
// of scope; the friend graph only needs target resolution.
type UserDirectory interface {
	Exists(ctx context.Context, userID string) (bool, error)
}
