package users

import (
	"strconv"

	"github.com/rollcall-hq/rollcall/internal/audit"
)

// passwordPlaceholder replaces password hashes in audit records; the
// trail records that the password changed, never what it changed to.
const passwordPlaceholder = "(hidden)"

// diffUsers computes the field-level differences between the pre-image
// and post-image of an edited account. An empty result means the update
// changed nothing and no audit entry should be written.
func diffUsers(old, updated User) []audit.FieldChange {
	var changes []audit.FieldChange
	if old.Name != updated.Name {
		changes = append(changes, audit.FieldChange{Field: "name", Old: old.Name, New: updated.Name})
	}
	if old.Email != updated.Email {
		changes = append(changes, audit.FieldChange{Field: "email", Old: old.Email, New: updated.Email})
	}
	if old.Role != updated.Role {
		changes = append(changes, audit.FieldChange{Field: "role", Old: string(old.Role), New: string(updated.Role)})
	}
	if old.IsActive != updated.IsActive {
		changes = append(changes, audit.FieldChange{
			Field: "is_active",
			Old:   strconv.FormatBool(old.IsActive),
			New:   strconv.FormatBool(updated.IsActive),
		})
	}
	if old.PasswordHash != updated.PasswordHash {
		changes = append(changes, audit.FieldChange{Field: "password", Old: passwordPlaceholder, New: passwordPlaceholder})
	}
	return changes
}
