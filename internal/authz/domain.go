package authz

import "fmt"

// Role is one of the three account roles. Roles are totally ordered by
// privilege: admin > moderator > user.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleModerator Role = "moderator"
	RoleUser      Role = "user"
)

// ParseRole validates a raw role value at the boundary. The decision
// engine itself assumes roles are already valid.
func ParseRole(raw string) (Role, error) {
	switch Role(raw) {
	case RoleAdmin, RoleModerator, RoleUser:
		return Role(raw), nil
	}
	return "", fmt.Errorf("authz: unknown role %q", raw)
}

// Valid reports whether the role belongs to the closed set.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleModerator, RoleUser:
		return true
	}
	return false
}

// Operation identifies an action attempted against the directory.
type Operation string

const (
	OpViewList Operation = "VIEW_LIST"
	OpViewOne  Operation = "VIEW_ONE"
	OpCreate   Operation = "CREATE"
	OpUpdate   Operation = "UPDATE"
	OpDelete   Operation = "DELETE"
)

// Principal is an authenticated identity as seen by the decision engine.
// Full account records carry more fields; only ID and Role matter here.
type Principal struct {
	ID   int64
	Role Role
}

// Decision is the outcome of an authorization check. It is derived and
// never stored.
type Decision struct {
	allowed bool
	reason  string
}

// Allow returns a permitting decision.
func Allow() Decision {
	return Decision{allowed: true}
}

// Deny returns a denying decision with a human-readable reason.
func Deny(reason string) Decision {
	return Decision{reason: reason}
}

// Allowed reports whether the operation may proceed.
func (d Decision) Allowed() bool {
	return d.allowed
}

// Reason returns the denial reason, empty when allowed.
func (d Decision) Reason() string {
	return d.reason
}
