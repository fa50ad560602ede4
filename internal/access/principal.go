// Package access defines who is calling and what they may see.
package access

// Role is the capability tag of a principal.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleMechanic Role = "mechanic"
)

// Principal is an authenticated caller: an administrator, or a mechanic
// identified by roster id.
type Principal struct {
	Role       Role   `json:"role"`
	MechanicID string `json:"mechanic_id,omitempty"`
	Name       string `json:"name"`
}

// Admin returns an administrator principal.
func Admin(name string) Principal {
	return Principal{Role: RoleAdmin, Name: name}
}

// Mechanic returns a mechanic principal.
func Mechanic(id, name string) Principal {
	return Principal{Role: RoleMechanic, MechanicID: id, Name: name}
}

// IsAdmin reports whether p has administrator capability.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// Valid reports whether p is a well-formed principal.
func (p Principal) Valid() bool {
	switch p.Role {
	case RoleAdmin:
		return true
	case RoleMechanic:
		return p.MechanicID != ""
	}
	return false
}

// CanSee is the single visibility rule shared by queries, commands, and
// the live stream. Admins see everything; a mechanic sees only items
// scoped to their own id.
func (p Principal) CanSee(scopedTo string) bool {
	if p.IsAdmin() {
		return true
	}
	return p.Role == RoleMechanic && p.MechanicID != "" && p.MechanicID == scopedTo
}
