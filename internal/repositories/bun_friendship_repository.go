package repositories

import (
	"context"
	"encoding/json"

	"github.com/uptrace/bun"

	"github.com/ChatRelay/go-chat-relay/events"
	"github.com/ChatRelay/go-chat-relay/internal/store"
	"github.com/ChatRelay/go-chat-relay/models"
)

type BunFriendshipRepository struct {
	db     bun.IDB
	stream *store.Stream
}

func NewBunFriendshipRepository(db bun.IDB, stream *store.Stream) FriendshipRepository {
	return &BunFriendshipRepository{db: db, stream: stream}
}

func (r *BunFriendshipRepository) Create(ctx context.Context, friendship *models.Friendship) (*models.Friendship, error) {
	_, err := r.db.NewInsert().
		Model(friendship).
		Exec(ctx)
	if err != nil {
		return nil, err
	}

	r.publishChange(ctx, friendship)
	return friendship, nil
}

func (r *BunFriendshipRepository) Exists(ctx context.Context, a, b string) (bool, error) {
	userA, userB := models.CanonicalPair(a, b)
	return r.db.NewSelect().
		Model((*models.Friendship)(nil)).
		Where("user_a = ?", userA).
		Where("user_b = ?", userB).
		Exists(ctx)
}

func (r *BunFriendshipRepository) ListFor(ctx context.Context, userID string) ([]models.Friendship, error) {
	var friendships []models.Friendship
	err := r.db.NewSelect().
		Model(&friendships).
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.WhereOr("user_a = ?", userID).WhereOr("user_b = ?", userID)
		}).
		Order("created_at DESC").
		Scan(ctx)
	return friendships, err
}

func (r *BunFriendshipRepository) WithTx(tx bun.IDB) FriendshipRepository {
	return &BunFriendshipRepository{db: tx, stream: r.stream}
}

func (r *BunFriendshipRepository) publishChange(ctx context.Context, friendship *models.Friendship) {
	if r.stream == nil {
		return
	}

	payload, _ := json.Marshal(friendship)
	origin := store.OriginFromContext(ctx)

	// Both members of the pair get the event on their own topic.
	for _, userID := range []string{friendship.UserA, friendship.UserB} {
		_ = r.stream.Publish(ctx, models.ChangeEvent{
			Topic:   store.Topic(events.TopicFriendships, userID),
			Kind:    models.ChangeInsert,
			Payload: payload,
			Origin:  origin,
		})
	}
}
