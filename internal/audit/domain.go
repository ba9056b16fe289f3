package audit

import (
	"fmt"
	"time"
)

// ActionType identifies a sensitive action recorded in the trail. The
// set is closed; new types require a contract change with the read side.
type ActionType string

const (
	ActionLoginSuccess ActionType = "LOGIN_SUCCESS"
	ActionLoginFailure ActionType = "LOGIN_FAILURE"
	ActionLogout       ActionType = "LOGOUT"
	ActionCreateUser   ActionType = "CREATE_USER"
	ActionEditUser     ActionType = "EDIT_USER"
	ActionDeleteUser   ActionType = "DELETE_USER"
)

// ParseActionType validates a raw action value at the boundary.
func ParseActionType(raw string) (ActionType, error) {
	switch ActionType(raw) {
	case ActionLoginSuccess, ActionLoginFailure, ActionLogout,
		ActionCreateUser, ActionEditUser, ActionDeleteUser:
		return ActionType(raw), nil
	}
	return "", fmt.Errorf("audit: unknown action type %q", raw)
}

// Valid reports whether the action belongs to the closed set.
func (a ActionType) Valid() bool {
	_, err := ParseActionType(string(a))
	return err == nil
}

// MetadataKind discriminates the metadata payload variants.
type MetadataKind string

const (
	MetaChanges     MetadataKind = "changes"
	MetaReason      MetadataKind = "reason"
	MetaUserDetails MetadataKind = "userDetails"
	MetaBrowser     MetadataKind = "browser"
)

// FieldChange records one field-level difference between the pre-image
// and post-image of an edited account.
type FieldChange struct {
	Field string `json:"field"`
	Old   string `json:"oldValue"`
	New   string `json:"newValue"`
}

// Metadata is the tagged-union payload stored with an entry. Exactly the
// fields for its Kind are populated; the rest stay zero and are omitted
// from the stored JSON.
type Metadata struct {
	Kind    MetadataKind  `json:"kind"`
	Changes []FieldChange `json:"changes,omitempty"`
	Reason  string        `json:"reason,omitempty"`
	Email   string        `json:"email,omitempty"`
	Role    string        `json:"role,omitempty"`
	Browser string        `json:"browser,omitempty"`
}

// ChangesMeta builds metadata describing field-level edits.
func ChangesMeta(changes []FieldChange) Metadata {
	return Metadata{Kind: MetaChanges, Changes: changes}
}

// ReasonMeta builds metadata carrying a failure reason.
func ReasonMeta(reason string) Metadata {
	return Metadata{Kind: MetaReason, Reason: reason}
}

// UserDetailsMeta builds metadata describing a created or deleted account.
func UserDetailsMeta(email, role string) Metadata {
	return Metadata{Kind: MetaUserDetails, Email: email, Role: role}
}

// BrowserMeta builds metadata recording the client user agent.
func BrowserMeta(browser string) Metadata {
	return Metadata{Kind: MetaBrowser, Browser: browser}
}

// Entry is one immutable audit fact. Once written it is never updated or
// deleted; no such operation exists anywhere in this service.
type Entry struct {
	ID        int64      `json:"id"`
	Action    ActionType `json:"action_type"`
	ActorID   int64      `json:"actor_id"`
	TargetID  *int64     `json:"target_id,omitempty"`
	Meta      Metadata   `json:"metadata"`
	IPAddress string     `json:"ip_address,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// NewEntry is the write-side input. ID and CreatedAt are minted by the
// store at insert time, never supplied by callers.
type NewEntry struct {
	Action    ActionType
	ActorID   int64
	TargetID  *int64
	Meta      Metadata
	IPAddress string
}

// Filters narrows a query. Zero values mean "not supplied"; supplied
// filters combine conjunctively. Time bounds are inclusive.
type Filters struct {
	From   time.Time
	To     time.Time
	Action ActionType
}
