package models

import (
	"context"
	"time"

	"github.com/uptrace/bun"
)

// User is the minimal identity row the friend graph resolves targets
// against. Profile data lives outside this subsystem; only existence
// matters here.
type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID        string    `json:"id" bun:",pk"`
	Name      string    `json:"name" bun:",notnull"`
	CreatedAt time.Time `json:"created_at" bun:",nullzero,notnull,default:current_timestamp"`
}

var _ bun.BeforeAppendModelHook = (*User)(nil)

func (u *User) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	if _, ok := query.(*bun.InsertQuery); ok {
		u.CreatedAt = time.Now()
	}
	return nil
}
