package repositories

import (
	"context"

	"github.com/uptrace/bun"

	"github.com/ChatRelay/go-chat-relay/models"
)

type BunUserDirectory struct {
	db bun.IDB
}

func NewBunUserDirectory(db bun.IDB) UserDirectory {
	return &BunUserDirectory{db: db}
}

func (r *BunUserDirectory) Exists(ctx context.Context, userID string) (bool, error) {
	return r.db.NewSelect().
		Model((*models.User)(nil)).
		Where("id = ?", userID).
		Exists(ctx)
}
