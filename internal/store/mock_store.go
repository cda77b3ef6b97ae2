// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite and to inject backend failures

package store

import (
	"context"
	"sync"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu         sync.RWMutex
	identities map[int64]*Identity // keyed by identity ID
	byEmail    map[string]int64    // keyed by normalized email -> identity ID
	nextID     int64
	closed     bool

	// Err, when set, is returned by every operation.
	Err error
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		identities: make(map[int64]*Identity),
		byEmail:    make(map[string]int64),
	}
}

// copyIdentity returns a deep copy so callers cannot modify stored state.
func copyIdentity(i *Identity) *Identity {
	c := *i
	if i.Shelter != nil {
		s := *i.Shelter
		c.Shelter = &s
	}
	if i.Foster != nil {
		f := *i.Foster
		c.Foster = &f
	}
	return &c
}

// FindIdentityByEmail retrieves an identity by email.
func (m *MockStore) FindIdentityByEmail(ctx context.Context, email string) (*Identity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Err != nil {
		return nil, m.Err
	}

	id, ok := m.byEmail[NormalizeEmail(email)]
	if !ok {
		return nil, ErrNotFound
	}
	return copyIdentity(m.identities[id]), nil
}

// FindIdentityByID retrieves an identity by ID.
func (m *MockStore) FindIdentityByID(ctx context.Context, id int64) (*Identity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Err != nil {
		return nil, m.Err
	}

	i, ok := m.identities[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyIdentity(i), nil
}

// CreateIdentity stores a new identity.
func (m *MockStore) CreateIdentity(ctx context.Context, email, passwordHash string) (*Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}

	email = NormalizeEmail(email)
	if _, exists := m.byEmail[email]; exists {
		return nil, ErrEmailExists
	}

	m.nextID++
	i := &Identity{ID: m.nextID, Email: email, PasswordHash: passwordHash}
	m.identities[i.ID] = i
	m.byEmail[email] = i.ID
	return copyIdentity(i), nil
}

// AttachShelter adds a shelter association to an identity.
func (m *MockStore) AttachShelter(ctx context.Context, identityID int64, name string) (*Shelter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}

	i, ok := m.identities[identityID]
	if !ok {
		return nil, ErrNotFound
	}
	if i.Shelter != nil {
		return nil, ErrAlreadyAttached
	}

	m.nextID++
	i.Shelter = &Shelter{ID: m.nextID, Name: name}
	s := *i.Shelter
	return &s, nil
}

// AttachFoster adds a foster association to an identity.
func (m *MockStore) AttachFoster(ctx context.Context, identityID int64, name string) (*Foster, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}

	i, ok := m.identities[identityID]
	if !ok {
		return nil, ErrNotFound
	}
	if i.Foster != nil {
		return nil, ErrAlreadyAttached
	}

	m.nextID++
	i.Foster = &Foster{ID: m.nextID, Name: name}
	f := *i.Foster
	return &f, nil
}

// DeleteIdentity removes an identity and its associations.
func (m *MockStore) DeleteIdentity(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}

	i, ok := m.identities[id]
	if !ok {
		return ErrNotFound
	}
	delete(m.byEmail, i.Email)
	delete(m.identities, id)
	return nil
}

// SetErr makes every subsequent operation fail with err; nil restores normal behavior.
func (m *MockStore) SetErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Err = err
}

// Ping fails once the store is closed or an error is injected.
func (m *MockStore) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Err != nil {
		return m.Err
	}
	if m.closed {
		return errStoreClosed
	}
	return nil
}

// Close marks the store closed.
func (m *MockStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Ensure MockStore implements Store
var _ Store = (*MockStore)(nil)
