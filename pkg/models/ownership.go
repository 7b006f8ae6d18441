package models

import (
	"context"
	"time"

	"github.com/uptrace/bun"
)

// Ownership is embedded in every user-owned model. The acting user from the
// query context is recorded as the creator on insert and as the last editor on
// every insert and update.
type Ownership struct {
	CreatedByID *int      `json:"created_by_id"`
	UpdatedByID *int      `json:"updated_by_id"`
	CreatedAt   time.Time `bun:",nullzero" json:"created_at"`
	UpdatedAt   time.Time `bun:",nullzero" json:"updated_at"`
}

// Owned is implemented by models embedding Ownership.
type Owned interface {
	Owner() *Ownership
}

func (o *Ownership) Owner() *Ownership {
	return o
}

// StampInsert fills the creator only when unset, so an explicitly assigned
// creator wins. CreatedAt is only assigned when zero.
func (o *Ownership) StampInsert(actor *int, now time.Time) {
	now = now.UTC()
	if o.CreatedByID == nil && actor != nil {
		o.CreatedByID = actor
	}
	if actor != nil {
		o.UpdatedByID = actor
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	} else {
		o.CreatedAt = o.CreatedAt.UTC()
	}
	o.UpdatedAt = now
}

// StampUpdate never touches CreatedByID or CreatedAt.
func (o *Ownership) StampUpdate(actor *int, now time.Time) {
	if actor != nil {
		o.UpdatedByID = actor
	}
	o.UpdatedAt = now.UTC()
}

var _ bun.BeforeAppendModelHook = (*Ownership)(nil)

func (o *Ownership) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	actor := ActorFrom(ctx).IDPtr()
	switch query.(type) {
	case *bun.InsertQuery:
		o.StampInsert(actor, time.Now())
	case *bun.UpdateQuery:
		o.StampUpdate(actor, time.Now())
	}
	return nil
}
