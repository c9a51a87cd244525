package consent

import (
	"errors"
	"sync"
)

// ErrSessionNotFound is returned when no in-flight consent matches a state.
var ErrSessionNotFound = errors.New("consent session not found")

// InMemoryRepo is a thread-safe in-memory implementation of Repo.
type InMemoryRepo struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewInMemoryRepo creates a new in-memory consent session repository.
func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{
		sessions: make(map[string]*Session),
	}
}

// Upsert stores or updates a consent session.
func (r *InMemoryRepo) Upsert(state string, session *Session) error {
	if state == "" {
		return errors.New("state cannot be empty")
	}
	if session == nil {
		return errors.New("session cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *session
	r.sessions[state] = &copied
	return nil
}

// Get retrieves a consent session by state.
func (r *InMemoryRepo) Get(state string) (*Session, error) {
	if state == "" {
		return nil, errors.New("state cannot be empty")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.sessions[state]
	if !ok {
		return nil, ErrSessionNotFound
	}

	copied := *session
	return &copied, nil
}

// Take removes and returns a consent session under a single lock. At most one
// caller gets the session; everyone else sees ErrSessionNotFound.
func (r *InMemoryRepo) Take(state string) (*Session, error) {
	if state == "" {
		return nil, errors.New("state cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[state]
	if !ok {
		return nil, ErrSessionNotFound
	}
	delete(r.sessions, state)

	copied := *session
	return &copied, nil
}

// Delete removes a consent session.
func (r *InMemoryRepo) Delete(state string) error {
	if state == "" {
		return errors.New("state cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, state)
	return nil
}
