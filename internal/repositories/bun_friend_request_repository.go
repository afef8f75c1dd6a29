package repositories

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/uptrace/bun"

	"github.com/ChatRelay/go-chat-relay/events"
	"github.com/ChatRelay/go-chat-relay/internal/store"
	"github.com/ChatRelay/go-chat-relay/models"
)

type BunFriendRequestRepository struct {
	db     bun.IDB
	stream *store.Stream
}

func NewBunFriendRequestRepository(db bun.IDB, stream *store.Stream) FriendRequestRepository {
	return &BunFriendRequestRepository{db: db, stream: stream}
}

func (r *BunFriendRequestRepository) Create(ctx context.Context, request *models.FriendRequest) (*models.FriendRequest, error) {
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewInsert().
			Model(request).
			Exec(ctx)
		if err != nil {
			return err
		}

		return tx.NewSelect().
			Model(request).
			WherePK().
			Scan(ctx)
	})
	if err != nil {
		return nil, err
	}

	r.publishChange(ctx, models.ChangeInsert, request, nil)
	return request, nil
}

func (r *BunFriendRequestRepository) GetByID(ctx context.Context, id string) (*models.FriendRequest, error) {
	request := new(models.FriendRequest)
	err := r.db.NewSelect().
		Model(request).
		Where("id = ?", id).
		Scan(ctx)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	return request, err
}

func (r *BunFriendRequestRepository) PendingBetween(ctx context.Context, a, b string) (*models.FriendRequest, error) {
	request := new(models.FriendRequest)
	err := r.db.NewSelect().
		Model(request).
		Where("status = ?", models.FriendRequestPending).
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.
				WhereGroup(" OR ", func(q *bun.SelectQuery) *bun.SelectQuery {
					return q.Where("from_user = ?", a).Where("to_user = ?", b)
				}).
				WhereGroup(" OR ", func(q *bun.SelectQuery) *bun.SelectQuery {
					return q.Where("from_user = ?", b).Where("to_user = ?", a)
				})
		}).
		Limit(1).
		Scan(ctx)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	return request, err
}

func (r *BunFriendRequestRepository) ListPendingFor(ctx context.Context, userID string) ([]models.FriendRequest, error) {
	var requests []models.FriendRequest
	err := r.db.NewSelect().
		Model(&requests).
		Where("to_user = ?", userID).
		Where("status = ?", models.FriendRequestPending).
		Order("created_at ASC").
		Scan(ctx)
	return requests, err
}

func (r *BunFriendRequestRepository) UpdateStatus(ctx context.Context, id string, status models.FriendRequestStatus) (*models.FriendRequest, error) {
	request := new(models.FriendRequest)
	var previous *models.FriendRequest

	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		err := tx.NewSelect().
			Model(request).
			Where("id = ?", id).
			Scan(ctx)
		if err != nil {
			return err
		}
		prior := *request
		previous = &prior

		request.Status = status
		_, err = tx.NewUpdate().
			Model(request).
			Column("status", "updated_at").
			WherePK().
			Exec(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	r.publishChange(ctx, models.ChangeUpdate, request, previous)
	return request, nil
}

func (r *BunFriendRequestRepository) WithTx(tx bun.IDB) FriendRequestRepository {
	return &BunFriendRequestRepository{db: tx, stream: r.stream}
}

func (r *BunFriendRequestRepository) publishChange(ctx context.Context, kind models.ChangeKind, request, previous *models.FriendRequest) {
	if r.stream == nil {
		return
	}

	payload, _ := json.Marshal(request)
	var prevPayload json.RawMessage
	if previous != nil {
		prevPayload, _ = json.Marshal(previous)
	}

	// Friend-request topics are addressed to the recipient.
	_ = r.stream.Publish(ctx, models.ChangeEvent{
		Topic:    store.Topic(events.TopicFriendRequests, request.ToUser),
		Kind:     kind,
		Payload:  payload,
		Previous: prevPayload,
		Origin:   store.OriginFromContext(ctx),
	})
}
