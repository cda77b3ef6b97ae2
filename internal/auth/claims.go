// ABOUTME: Token payload with identity fields on top of the registered JWT claims
// ABOUTME: Claims are built once at login and only read afterwards

package auth

import (
	"github.com/golang-jwt/jwt/v5"
)

// Claims is the signed payload of an access token.
//
// Subject holds the stringified user id; UserID duplicates it for typed
// access. Email is a snapshot taken at issuance.
type Claims struct {
	UserID int64  `json:"user_id"`
	Email  string `json:"email"`
	Role   Role   `json:"role"`
	jwt.RegisteredClaims
}

// HasRole reports whether the claims carry the required role. RoleNone never
// satisfies a gate.
func (c *Claims) HasRole(required Role) bool {
	return c != nil && c.Role != RoleNone && c.Role == required
}
