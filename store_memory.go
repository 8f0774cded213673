package auth

import (
	"context"
	"sync"
	"time"
)

// MemoryIdentityStore is an in process IdentityStore, useful for tests and
// single node development setups.
type MemoryIdentityStore struct {
	mu     sync.RWMutex
	nextID int64
	byID   map[int64]*User
	byName map[string]int64
}

var (
	_ IdentityStore        = (*MemoryIdentityStore)(nil)
	_ AccountStatusUpdater = (*MemoryIdentityStore)(nil)
)

// NewMemoryIdentityStore creates an empty store
func NewMemoryIdentityStore() *MemoryIdentityStore {
	return &MemoryIdentityStore{
		byID:   make(map[int64]*User),
		byName: make(map[string]int64),
	}
}

// Put inserts or replaces a record. A zero ID is assigned the next free id.
// Replacing a username with a different id drops the previous record.
func (m *MemoryIdentityStore) Put(user User) *User {
	m.mu.Lock()
	defer m.mu.Unlock()

	if user.ID == 0 {
		m.nextID++
		user.ID = m.nextID
	} else if user.ID > m.nextID {
		m.nextID = user.ID
	}

	if prev, ok := m.byName[user.Username]; ok && prev != user.ID {
		delete(m.byID, prev)
	}
	if prev, ok := m.byID[user.ID]; ok && prev.Username != user.Username {
		delete(m.byName, prev.Username)
	}

	now := time.Now().UTC()
	if user.CreatedAt == nil {
		user.CreatedAt = &now
	}
	user.UpdatedAt = &now

	stored := user
	m.byID[user.ID] = &stored
	m.byName[user.Username] = user.ID

	out := stored
	return &out
}

// Delete removes a record by username
func (m *MemoryIdentityStore) Delete(username string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.byName[username]; ok {
		delete(m.byID, id)
		delete(m.byName, username)
	}
}

func (m *MemoryIdentityStore) FindByUsername(_ context.Context, username string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byName[username]
	if !ok {
		return nil, notFound("username", username)
	}
	out := *m.byID[id]
	return &out, nil
}

func (m *MemoryIdentityStore) FindByID(_ context.Context, id int64) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	user, ok := m.byID[id]
	if !ok {
		return nil, notFound("id", id)
	}
	out := *user
	return &out, nil
}

func (m *MemoryIdentityStore) SetEnabled(_ context.Context, id int64, enabled bool) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.byID[id]
	if !ok {
		return nil, notFound("id", id)
	}
	user.Enabled = enabled
	now := time.Now().UTC()
	user.UpdatedAt = &now

	out := *user
	return &out, nil
}
