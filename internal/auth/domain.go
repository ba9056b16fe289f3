package auth

import (
	"time"

	"github.com/rollcall-hq/rollcall/internal/authz"
)

// User represents an account as seen by the authentication flow.
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
