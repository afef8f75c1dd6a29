package models

import (
	"context"
	"time"

	"github.com/uptrace/bun"
)

// FriendRequestStatus enumerates the friend-request lifecycle.
// pending is the only non-terminal state.
type FriendRequestStatus string

const (
	FriendRequestPending  FriendRequestStatus = "pending"
	FriendRequestAccepted FriendRequestStatus = "accepted"
	FriendRequestRejected FriendRequestStatus = "rejected"
)

// FriendRequest is a directed request from one user to another.
// At most one pending request may exist for an unordered pair at a time;
// the creation path checks both directions before insert.
type FriendRequest struct {
	bun.BaseModel `bun:"table:friend_requests,alias:fr"`

	ID        string              `json:"id" bun:",pk"`
	FromUser  string              `json:"from_user" bun:",notnull"`
	ToUser    string              `json:"to_user" bun:",notnull"`
	Status    FriendRequestStatus `json:"status" bun:",notnull,default:'pending'"`
	CreatedAt time.Time           `json:"created_at" bun:",nullzero,notnull,default:current_timestamp"`
	UpdatedAt time.Time           `json:"updated_at" bun:",nullzero,notnull,default:current_timestamp"`
}

var _ bun.BeforeAppendModelHook = (*FriendRequest)(nil)

func (r *FriendRequest) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	switch query.(type) {
	case *bun.InsertQuery:
		r.CreatedAt = time.Now()
		r.UpdatedAt = time.Now()
	case *bun.UpdateQuery:
		r.UpdatedAt = time.Now()
	}
	return nil
}

// Friendship is the canonical mutual pair: UserA < UserB under the total
// order on identities, so the pair is representable exactly one way and a
// lookup never needs to check both orderings. Immutable once created.
type Friendship struct {
	bun.BaseModel `bun:"table:friendships,alias:fs"`

	UserA     string    `json:"user_a" bun:",pk"`
	UserB     string    `json:"user_b" bun:",pk"`
	CreatedAt time.Time `json:"created_at" bun:",nullzero,notnull,default:current_timestamp"`
}

var _ bun.BeforeAppendModelHook = (*Friendship)(nil)

func (f *Friendship) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	if _, ok := query.(*bun.InsertQuery); ok {
		f.CreatedAt = time.Now()
	}
	return nil
}

// CanonicalPair orders two identities so the lower one is always first.
func CanonicalPair(a, b string) (string, string) {
	if a < b {
		return a, b
	}
	return b, a
}
