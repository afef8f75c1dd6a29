package models

import (
	"context"
	"time"

	"github.com/uptrace/bun"
)

// PresenceStatus enumerates the presence states a user can be in.
type PresenceStatus string

const (
	StatusOnline    PresenceStatus = "online"
	StatusAway      PresenceStatus = "away"
	StatusBusy      PresenceStatus = "busy"
	StatusInvisible PresenceStatus = "invisible"
	StatusOffline   PresenceStatus = "offline"
)

func (s PresenceStatus) Valid() bool {
	switch s {
	case StatusOnline, StatusAway, StatusBusy, StatusInvisible, StatusOffline:
		return true
	}
	return false
}

// Activity is the closed set of known activity fields plus a typed
// extension point, instead of an unconstrained map.
type Activity struct {
	Typing bool              `json:"typing"`
	Custom map[string]string `json:"custom,omitempty"`
}

// PresenceRecord is the persisted presence row, at most one per user.
// Updates are upserts keyed on UserID. Disconnect flips status to offline;
// rows are never physically removed by the client.
type PresenceRecord struct {
	bun.BaseModel `bun:"table:presence_records,alias:pr"`

	UserID     string         `json:"user_id" bun:",pk"`
	Status     PresenceStatus `json:"status" bun:",notnull"`
	LastActive time.Time      `json:"last_active" bun:",nullzero,notnull,default:current_timestamp"`
	Activity   Activity       `json:"activity" bun:"activity,type:jsonb"`
	UpdatedAt  time.Time      `json:"updated_at" bun:",nullzero,notnull,default:current_timestamp"`
}

var _ bun.BeforeAppendModelHook = (*PresenceRecord)(nil)

func (p *PresenceRecord) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	switch query.(type) {
	case *bun.InsertQuery, *bun.UpdateQuery:
		p.UpdatedAt = time.Now()
	}
	return nil
}

// EffectiveStatus resolves what a reader should see: a stale last_active
// past the liveness threshold reads as offline even when no explicit
// offline write ever landed.
func (p *PresenceRecord) EffectiveStatus(now time.Time, offlineThreshold time.Duration) PresenceStatus {
	if p.Status == StatusOffline {
		return StatusOffline
	}
	if offlineThreshold > 0 && now.Sub(p.LastActive) > offlineThreshold {
		return StatusOffline
	}
	return p.Status
}
