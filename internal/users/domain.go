package users

import (
	"time"

	"github.com/rollcall-hq/rollcall/internal/authz"
)

// User represents a directory account.
type User struct {
	ID           int64
	Email        string
	Name         string
	Role         authz.Role
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Principal projects the account onto the two fields the decision engine
// cares about.
func (u User) Principal() authz.Principal {
	return authz.Principal{ID: u.ID, Role: u.Role}
}
