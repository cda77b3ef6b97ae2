// ABOUTME: Role enum carried inside token claims
// ABOUTME: Derivation from identity associations and case-insensitive parsing

package auth

import (
	"fmt"
	"strings"
)

// Role is the coarse authorization category of an identity.
type Role int

const (
	RoleNone Role = iota
	RoleShelter
	RoleFoster
)

// String returns the wire form of the role.
func (r Role) String() string {
	switch r {
	case RoleShelter:
		return "SHELTER"
	case RoleFoster:
		return "FOSTER"
	default:
		return ""
	}
}

// ParseRole parses a role name ignoring case and surrounding whitespace.
func ParseRole(s string) (Role, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "":
		return RoleNone, nil
	case "SHELTER":
		return RoleShelter, nil
	case "FOSTER":
		return RoleFoster, nil
	default:
		return RoleNone, fmt.Errorf("unknown role %q", s)
	}
}

// DeriveRole computes the role of an identity from its associations.
// An identity that operates a shelter is SHELTER even if it also fosters.
func DeriveRole(hasShelter, hasFoster bool) Role {
	switch {
	case hasShelter:
		return RoleShelter
	case hasFoster:
		return RoleFoster
	default:
		return RoleNone
	}
}

// MarshalText implements encoding.TextMarshaler.
func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Unknown names are an
// error so that a token carrying one fails to parse.
func (r *Role) UnmarshalText(text []byte) error {
	role, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = role
	return nil
}
