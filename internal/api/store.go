package api

import (
	"sync"
	"time"

	"github.com/samcharles93/quantchat/internal/inference"
	"github.com/samcharles93/quantchat/internal/metrics"
)

// sessionEntry pairs a session with the lock that serialises its rounds.
type sessionEntry struct {
	mu        sync.Mutex
	id        string
	created   time.Time
	quantized bool
	topK      int
	topP      float64
	session   *inference.Session
}

// SessionStore holds live sessions by id.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*sessionEntry
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*sessionEntry),
	}
}

func (s *SessionStore) put(e *sessionEntry) {
	s.mu.Lock()
	s.sessions[e.id] = e
	n := len(s.sessions)
	s.mu.Unlock()
	metrics.ActiveSessions.Set(float64(n))
}

func (s *SessionStore) get(id string) (*sessionEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[id]
	return e, ok
}

func (s *SessionStore) Delete(id string) bool {
	s.mu.Lock()
	_, ok := s.sessions[id]
	delete(s.sessions, id)
	n := len(s.sessions)
	s.mu.Unlock()
	metrics.ActiveSessions.Set(float64(n))
	return ok
}

// Len is the number of live sessions.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
