// ABOUTME: bcrypt password hashing and verification for stored identities
// ABOUTME: Includes a dummy comparison to keep login timing uniform

package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/2389/refuge-gateway/internal/apperr"
)

// PasswordCost is the bcrypt work factor used for every new hash.
const PasswordCost = bcrypt.DefaultCost

// dummyHash is compared against when no stored digest exists. It must stay
// at PasswordCost. Digests imported at a lower cost verify faster than this
// comparison, so such accounts are distinguishable by timing until they are
// re-hashed; see NeedsRehash.
var dummyHash = []byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy")

// HashPassword returns a salted bcrypt digest of secret.
func HashPassword(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), PasswordCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword reports whether secret matches digest. A mismatch is
// (false, nil); a digest that cannot be parsed is an internal error.
func VerifyPassword(secret, digest string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(digest), []byte(secret))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword), errors.Is(err, bcrypt.ErrPasswordTooLong):
		return false, nil
	default:
		return false, apperr.Internal(fmt.Errorf("malformed password digest: %w", err))
	}
}

// EqualizeTiming performs a throwaway comparison so that rejecting an
// unknown account costs the same as rejecting a wrong password.
func EqualizeTiming(secret string) {
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(secret))
}

// NeedsRehash reports whether digest was produced with a work factor other
// than PasswordCost. Unparseable digests report false; VerifyPassword
// already surfaces those.
func NeedsRehash(digest string) bool {
	cost, err := bcrypt.Cost([]byte(digest))
	if err != nil {
		return false
	}
	return cost != PasswordCost
}
