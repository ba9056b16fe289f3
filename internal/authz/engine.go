package authz

// Denial reasons surfaced to callers. These are safe to show to the
// requesting user and never reveal more than the operation implies.
const (
	reasonAccessDenied    = "access denied"
	reasonOnlyAdminCreate = "only admin can create users"
	reasonAdminSelfDelete = "admins cannot delete their own account"
	reasonModDeleteScope  = "moderators can only delete basic users"
	reasonUserDelete      = "basic users cannot delete accounts"
)

// Request describes one authorization question: may actor perform op
// against target? Target is nil for CREATE and VIEW_LIST. RequestedRole
// is non-empty only when an UPDATE additionally asks to change the
// target's role.
type Request struct {
	Actor         Principal
	Op            Operation
	Target        *Principal
	RequestedRole Role
}

// Decide classifies a request as allowed or denied. It is pure: no I/O,
// no hidden state, identical input always yields identical output. The
// caller must resolve the target's existence first; a nil target for an
// operation that needs one is denied, never an error.
func Decide(req Request) Decision {
	switch req.Op {
	case OpViewList:
		return Allow()
	case OpViewOne:
		return decideView(req.Actor, req.Target)
	case OpCreate:
		return decideCreate(req.Actor)
	case OpUpdate:
		return decideUpdate(req.Actor, req.Target, req.RequestedRole)
	case OpDelete:
		return decideDelete(req.Actor, req.Target)
	}
	return Deny(reasonAccessDenied)
}

func decideView(actor Principal, target *Principal) Decision {
	if target == nil {
		return Deny(reasonAccessDenied)
	}
	switch actor.Role {
	case RoleAdmin, RoleModerator:
		return Allow()
	}
	if target.ID == actor.ID {
		return Allow()
	}
	return Deny(reasonAccessDenied)
}

func decideCreate(actor Principal) Decision {
	if actor.Role == RoleAdmin {
		return Allow()
	}
	return Deny(reasonOnlyAdminCreate)
}

func decideUpdate(actor Principal, target *Principal, requestedRole Role) Decision {
	if target == nil {
		return Deny(reasonAccessDenied)
	}

	// A denied role change denies the entire update; non-role fields are
	// never partially applied past a rejected escalation.
	if requestedRole != "" && requestedRole != target.Role {
		if d := decideRoleChange(actor, target, requestedRole); !d.Allowed() {
			return d
		}
	}

	switch actor.Role {
	case RoleAdmin:
		return Allow()
	case RoleModerator:
		if target.Role == RoleUser || target.ID == actor.ID {
			return Allow()
		}
	case RoleUser:
		if target.ID == actor.ID {
			return Allow()
		}
	}
	return Deny(reasonAccessDenied)
}

// decideRoleChange enforces who may assign which role. Admin assigns
// freely. A moderator may touch the role field only while the target is
// still a basic user, and may never escalate anyone to moderator or
// admin.
func decideRoleChange(actor Principal, target *Principal, requested Role) Decision {
	if actor.Role == RoleAdmin {
		return Allow()
	}
	if actor.Role == RoleModerator && target.Role == RoleUser && requested == RoleUser {
		return Allow()
	}
	return Deny(reasonAccessDenied)
}

func decideDelete(actor Principal, target *Principal) Decision {
	if target == nil {
		return Deny(reasonAccessDenied)
	}
	switch actor.Role {
	case RoleAdmin:
		if target.ID == actor.ID {
			return Deny(reasonAdminSelfDelete)
		}
		return Allow()
	case RoleModerator:
		if target.Role == RoleUser {
			return Allow()
		}
		return Deny(reasonModDeleteScope)
	}
	return Deny(reasonUserDelete)
}
