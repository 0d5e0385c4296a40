package goGate

import (
	"fmt"
	"math/bits"
	"strings"
)

// Role is the closed set of account roles. The zero value is not a valid
// role; use [ParseRole] at every boundary where a role arrives as text.
type Role uint8

const (
	// RoleUnknown is the zero value and never passes validation.
	RoleUnknown Role = iota
	// RoleUser is assigned to every new account.
	RoleUser
	// RoleModerator is an elevated non-admin role.
	RoleModerator
	// RoleAdmin may manage other accounts.
	RoleAdmin

	roleCount
)

// DefaultRole is assigned at account creation. Callers cannot choose a role
// when signing up.
const DefaultRole = RoleUser

var roleNames = [roleCount]string{
	RoleUnknown:   "",
	RoleUser:      "user",
	RoleModerator: "moderator",
	RoleAdmin:     "admin",
}

// AllRoles returns every valid role in ascending privilege order.
func AllRoles() []Role {
	return []Role{RoleUser, RoleModerator, RoleAdmin}
}

// ParseRole converts the text form of a role. An empty string yields
// [DefaultRole]; any other unrecognized value returns [ErrRoleInvalid].
func ParseRole(s string) (Role, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return DefaultRole, nil
	}
	for r := RoleUser; r < roleCount; r++ {
		if roleNames[r] == s {
			return r, nil
		}
	}
	return RoleUnknown, fmt.Errorf("%w: %q", ErrRoleInvalid, s)
}

// Valid reports whether r is one of the declared roles.
func (r Role) Valid() bool {
	return r > RoleUnknown && r < roleCount
}

func (r Role) String() string {
	if r >= roleCount {
		return fmt.Sprintf("Role(%d)", uint8(r))
	}
	return roleNames[r]
}

// MarshalText implements encoding.TextMarshaler.
func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, ErrRoleInvalid
	}
	return []byte(roleNames[r]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Unlike [ParseRole] it
// rejects the empty string, so a missing role in a request body is an error.
func (r *Role) UnmarshalText(text []byte) error {
	if len(strings.TrimSpace(string(text))) == 0 {
		return fmt.Errorf("%w: empty", ErrRoleInvalid)
	}
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// RoleSet is an unordered set of roles stored as a bitmask. The empty set
// means "any authenticated session".
type RoleSet uint8

// NewRoleSet builds a set from roles. Invalid roles are ignored.
func NewRoleSet(roles ...Role) RoleSet {
	var s RoleSet
	for _, r := range roles {
		if r.Valid() {
			s |= 1 << r
		}
	}
	return s
}

// Contains reports whether r is a member of s.
func (s RoleSet) Contains(r Role) bool {
	if !r.Valid() {
		return false
	}
	return s&(1<<r) != 0
}

// IsEmpty reports whether s has no members.
func (s RoleSet) IsEmpty() bool {
	return s == 0
}

// Len returns the number of members.
func (s RoleSet) Len() int {
	return bits.OnesCount8(uint8(s))
}

// Roles returns the members in ascending privilege order.
func (s RoleSet) Roles() []Role {
	out := make([]Role, 0, s.Len())
	for r := RoleUser; r < roleCount; r++ {
		if s.Contains(r) {
			out = append(out, r)
		}
	}
	return out
}

func (s RoleSet) String() string {
	roles := s.Roles()
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = r.String()
	}
	return "[" + strings.Join(names, ",") + "]"
}
