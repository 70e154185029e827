package models

import "strconv"

// Role is the privilege tier of a caller.
type Role string

const (
	RoleUser   Role = "USER"
	RoleAdmin  Role = "ADMIN"
	roleSystem Role = "SYSTEM"
)

// Actor is the authenticated identity behind an operation.
type Actor struct {
	UserID int64
	Role   Role
}

// SystemActor runs background generation triggered by the outbox.
var SystemActor = Actor{Role: roleSystem}

// IsPrivileged reports whether the actor may act on requests it does not own.
func (a Actor) IsPrivileged() bool {
	return a.Role == RoleAdmin || a.Role == roleSystem
}

// CanAccess reports whether the actor may read or act on the request.
func (a Actor) CanAccess(r *FormationRequest) bool {
	return a.IsPrivileged() || r.OwnedBy(a.UserID)
}

// Label identifies the actor in document metadata and logs.
func (a Actor) Label() string {
	switch a.Role {
	case roleSystem:
		return "system"
	case RoleAdmin:
		return "admin:" + strconv.FormatInt(a.UserID, 10)
	default:
		return "user:" + strconv.FormatInt(a.UserID, 10)
	}
}
