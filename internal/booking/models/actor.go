package models

import dErrors "rentguard/pkg/domain-errors"

type Role string

const (
	RoleTenant   Role = "tenant"
	RoleHost     Role = "host"
	RoleResolver Role = "resolver"
	RoleSystem   Role = "system"
)

// Actor is whoever asks for a transition.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

var SystemActor = Actor{ID: "system", Role: RoleSystem}

func (a Actor) String() string { return string(a.Role) + ":" + a.ID }

// IsParty reports whether a is the booking's tenant or host, or the system.
func (b *Booking) IsParty(a Actor) bool {
	switch a.Role {
	case RoleTenant:
		return a.ID != "" && a.ID == string(b.TenantID)
	case RoleHost:
		return a.ID != "" && a.ID == string(b.HostID)
	case RoleSystem:
		return true
	}
	return false
}

// RequireParty returns a forbidden error unless a is a party to b.
func (b *Booking) RequireParty(a Actor) error {
	if !b.IsParty(a) {
		return dErrors.Newf(dErrors.CodeForbidden, "%s is not a party to booking %s", a, b.ID)
	}
	return nil
}
