package models

import (
	"time"

	"github.com/uptrace/bun"
)

type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID           int       `bun:",pk,nullzero" json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Username     string    `bun:",nullzero" json:"username"`
	PasswordHash string    `json:"-"` // Never expose password hash
	IsActive     bool      `json:"is_active"`
	IsAdmin      bool      `json:"is_admin"`
}

// IDPtr returns a pointer to the user's ID, or nil for a nil user.
func (u *User) IDPtr() *int {
	if u == nil {
		return nil
	}
	id := u.ID
	return &id
}
