package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/planmesh/planmesh/core"
)

// InMemorySessionStore keeps sessions in a map keyed by id. Save checks the
// session's version token against the stored copy and rejects stale writes,
// so concurrent writers must reload and retry instead of clobbering each
// other.
type InMemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*core.Session
}

var _ core.SessionStore = (*InMemorySessionStore)(nil)

// NewSessionStore creates an empty in-memory session store.
func NewSessionStore() *InMemorySessionStore {
	return &InMemorySessionStore{sessions: make(map[string]*core.Session)}
}

// Create stores a new session. Creating an id that already exists is an
// error.
func (s *InMemorySessionStore) Create(ctx context.Context, session *core.Session) error {
	if session == nil || session.ID == "" {
		return fmt.Errorf("create session: missing id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[session.ID]; exists {
		return fmt.Errorf("create session %s: already exists", session.ID)
	}
	s.sessions[session.ID] = session.Clone()
	return nil
}

// Get returns a deep copy of the stored session so callers can mutate it
// freely before Save.
func (s *InMemorySessionStore) Get(ctx context.Context, id string) (*core.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored, ok := s.sessions[id]
	if !ok {
		return nil, core.ErrSessionNotFound
	}
	return stored.Clone(), nil
}

// Save persists the session if its version matches the stored version,
// then bumps the caller's token. A mismatch returns ErrVersionConflict
// and leaves the stored copy untouched.
func (s *InMemorySessionStore) Save(ctx context.Context, session *core.Session) error {
	if session == nil {
		return fmt.Errorf("save session: nil session")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.sessions[session.ID]
	if !ok {
		return core.ErrSessionNotFound
	}
	if stored.Version != session.Version {
		return core.ErrVersionConflict
	}
	session.BumpVersion()
	s.sessions[session.ID] = session.Clone()
	return nil
}

// Delete removes a session. Deleting a missing id is an error.
func (s *InMemorySessionStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return core.ErrSessionNotFound
	}
	delete(s.sessions, id)
	return nil
}

// List returns copies of all stored sessions.
func (s *InMemorySessionStore) List(ctx context.Context) []*core.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*core.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.Clone())
	}
	return out
}

// PruneExpired deletes sessions whose expiry has elapsed and returns how
// many were removed.
func (s *InMemorySessionStore) PruneExpired(ctx context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, sess := range s.sessions {
		if sess.IsExpired() {
			delete(s.sessions, id)
			n++
		}
	}
	return n
}
