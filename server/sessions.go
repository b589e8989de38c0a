package server

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chazu/monty/vm"
)

// Session is a workspace with its own global namespace. Programs run
// inside a session see the bindings left behind by earlier runs.
type Session struct {
	ID      string
	Name    string
	Globals *vm.Module

	created  time.Time
	lastUsed time.Time
}

// SessionStore manages workspace sessions.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewSessionStore creates a new session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*Session),
	}
}

// Create creates a new session with an optional display name.
func (s *SessionStore) Create(name string) *Session {
	now := time.Now()
	session := &Session{
		ID:       "sess_" + uuid.New().String(),
		Name:     name,
		Globals:  vm.NewModule("__main__"),
		created:  now,
		lastUsed: now,
	}

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.mu.Unlock()

	return session
}

// Get retrieves a session by ID and marks it as recently used.
func (s *SessionStore) Get(id string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	session.lastUsed = time.Now()
	return session, true
}

// Destroy removes a session, reporting whether it existed.
func (s *SessionStore) Destroy(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return false
	}
	delete(s.sessions, id)
	return true
}

// IDs returns the active session IDs, sorted.
func (s *SessionStore) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Sweep removes sessions that haven't been used within the TTL.
func (s *SessionStore) Sweep(ttl time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-ttl)
	removed := 0
	for id, session := range s.sessions {
		if session.lastUsed.Before(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// StartSweeper runs periodic TTL sweeps in the background.
// Returns a stop function.
func (s *SessionStore) StartSweeper(interval, ttl time.Duration) func() {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				s.Sweep(ttl)
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()
	return func() { close(done) }
}
