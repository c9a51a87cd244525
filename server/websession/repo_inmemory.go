package websession

import (
	"errors"
	"sync"
)

// ErrNotFound is returned when no session matches the identifier.
var ErrNotFound = errors.New("session not found")

// InMemoryRepo is a thread-safe in-memory implementation of Repo.
type InMemoryRepo struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

// NewInMemoryRepo creates a new in-memory session repository.
func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{
		sessions: make(map[string]Session),
	}
}

// Upsert creates or updates a session.
func (r *InMemoryRepo) Upsert(id string, session Session) error {
	if id == "" {
		return errors.New("session id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[id] = session
	return nil
}

// Get retrieves a session by identifier.
func (r *InMemoryRepo) Get(id string) (Session, error) {
	if id == "" {
		return Session{}, errors.New("session id is required")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.sessions[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	return session, nil
}

// Delete removes a session.
func (r *InMemoryRepo) Delete(id string) error {
	if id == "" {
		return errors.New("session id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, id)
	return nil
}
