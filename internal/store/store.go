// ABOUTME: Identity types and store interfaces for the refuge gateway
// ABOUTME: The gateway only reads identities; writes exist for bootstrap tooling

package store

import (
	"context"
	"errors"
	"strings"
)

// ErrNotFound is returned when a requested identity does not exist
var ErrNotFound = errors.New("not found")

// ErrEmailExists is returned when creating an identity whose email is taken
var ErrEmailExists = errors.New("email already exists")

// ErrAlreadyAttached is returned when an identity already has a shelter or foster
// association of the requested kind
var ErrAlreadyAttached = errors.New("association already exists")

var errStoreClosed = errors.New("store closed")

// Shelter is the shelter-operator association of an identity.
type Shelter struct {
	ID   int64  `json:"id"`
	Name string `json:"nom"`
}

// Foster is the foster-family association of an identity.
type Foster struct {
	ID   int64  `json:"id"`
	Name string `json:"nom"`
}

// Identity is a persisted user account with its optional associations.
type Identity struct {
	ID           int64
	Email        string
	PasswordHash string
	Shelter      *Shelter
	Foster       *Foster
}

// PublicIdentity is the representation of an identity returned to clients.
// It never carries the password hash.
type PublicIdentity struct {
	ID      int64    `json:"id"`
	Email   string   `json:"email"`
	Shelter *Shelter `json:"refuge"`
	Foster  *Foster  `json:"accueillant"`
}

// Public returns a copy of the identity that is safe to serialize.
func (i *Identity) Public() PublicIdentity {
	p := PublicIdentity{ID: i.ID, Email: i.Email}
	if i.Shelter != nil {
		s := *i.Shelter
		p.Shelter = &s
	}
	if i.Foster != nil {
		f := *i.Foster
		p.Foster = &f
	}
	return p
}

// IdentityReader looks identities up. It is the only capability the login
// flow needs.
type IdentityReader interface {
	FindIdentityByEmail(ctx context.Context, email string) (*Identity, error)
	FindIdentityByID(ctx context.Context, id int64) (*Identity, error)
}

// IdentityWriter creates identities and their associations.
type IdentityWriter interface {
	CreateIdentity(ctx context.Context, email, passwordHash string) (*Identity, error)
	AttachShelter(ctx context.Context, identityID int64, name string) (*Shelter, error)
	AttachFoster(ctx context.Context, identityID int64, name string) (*Foster, error)
	// DeleteIdentity removes the identity together with its associations.
	DeleteIdentity(ctx context.Context, id int64) error
}

// Store is implemented by every backend.
type Store interface {
	IdentityReader
	IdentityWriter
	Ping(ctx context.Context) error
	Close() error
}

// NormalizeEmail is applied to emails before they are stored or looked up.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
