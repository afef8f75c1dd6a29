package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/uptrace/bun"

	"github.com/ChatRelay/go-chat-relay/events"
	"github.com/ChatRelay/go-chat-relay/internal/store"
	"github.com/ChatRelay/go-chat-relay/models"
)

type BunPresenceRepository struct {
	db     bun.IDB
	stream *store.Stream
}

func NewBunPresenceRepository(db bun.IDB, stream *store.Stream) PresenceRepository {
	return &BunPresenceRepository{db: db, stream: stream}
}

func (r *BunPresenceRepository) Upsert(ctx context.Context, record *models.PresenceRecord) (*models.PresenceRecord, error) {
	var previous *models.PresenceRecord

	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		existing := new(models.PresenceRecord)
		err := tx.NewSelect().
			Model(existing).
			Where("user_id = ?", record.UserID).
			Scan(ctx)
		switch err {
		case nil:
			previous = existing
		case sql.ErrNoRows:
			previous = nil
		default:
			return err
		}

		_, err = tx.NewInsert().
			Model(record).
			On("CONFLICT (user_id) DO UPDATE").
			Set("status = EXCLUDED.status").
			Set("last_active = EXCLUDED.last_active").
			Set("activity = EXCLUDED.activity").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	r.publishChange(ctx, record, previous)
	return previous, nil
}

func (r *BunPresenceRepository) GetByUserID(ctx context.Context, userID string) (*models.PresenceRecord, error) {
	record := new(models.PresenceRecord)
	err := r.db.NewSelect().
		Model(record).
		Where("user_id = ?", userID).
		Scan(ctx)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	return record, err
}

func (r *BunPresenceRepository) ListActiveSince(ctx context.Context, since time.Time) ([]models.PresenceRecord, error) {
	var records []models.PresenceRecord
	err := r.db.NewSelect().
		Model(&records).
		Where("status != ?", models.StatusOffline).
		Where("last_active >= ?", since).
		Order("last_active DESC").
		Scan(ctx)
	return records, err
}

func (r *BunPresenceRepository) WithTx(tx bun.IDB) PresenceRepository {
	return &BunPresenceRepository{db: tx, stream: r.stream}
}

func (r *BunPresenceRepository) publishChange(ctx context.Context, record, previous *models.PresenceRecord) {
	if r.stream == nil {
		return
	}

	kind := models.ChangeInsert
	var prevPayload json.RawMessage
	if previous != nil {
		kind = models.ChangeUpdate
		prevPayload, _ = json.Marshal(previous)
	}
	payload, _ := json.Marshal(record)

	// Delivery is eventual-consistency after commit; a publish failure is
	// not a write failure.
	_ = r.stream.Publish(ctx, models.ChangeEvent{
		Topic:    store.Topic(events.TopicPresence, record.UserID),
		Kind:     kind,
		Payload:  payload,
		Previous: prevPayload,
		Origin:   store.OriginFromContext(ctx),
	})
}
