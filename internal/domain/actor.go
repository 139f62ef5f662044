/**
 * @description
 * This file defines the Actor value type carried through authenticated
 * requests. The session provider (an external service) issues JWTs; the API
 * middleware turns validated claims into a single Actor checked once at the
 * entry of each state-machine operation.
 */

package domain

import "github.com/google/uuid"

// Role is the closed enumeration of actor roles the settlement engine
// distinguishes. Anything else is treated as an ordinary customer.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleSaraf    Role = "saraf"
	RoleCustomer Role = "customer"
)

// ParseRole maps a raw claim value onto the closed role set.
func ParseRole(raw string) Role {
	switch Role(raw) {
	case RoleAdmin:
		return RoleAdmin
	case RoleSaraf:
		return RoleSaraf
	default:
		return RoleCustomer
	}
}

// Actor is the authenticated identity acting on a transfer.
// OwnedSarafID is set only for saraf handlers.
type Actor struct {
	ID           uuid.UUID
	Role         Role
	OwnedSarafID *uuid.UUID
}

// IsAdmin reports whether the actor holds the admin role.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// HandlesSaraf reports whether the actor is a handler for the given saraf.
func (a Actor) HandlesSaraf(sarafID uuid.UUID) bool {
	return a.Role == RoleSaraf && a.OwnedSarafID != nil && *a.OwnedSarafID == sarafID
}
