package session

import (
	"context"
	"sync"
	"time"

	"inkvault/api/internal/store"
)

// MemoryStore is a process-local session store for development and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]store.Session
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: map[string]store.Session{}, now: time.Now}
}

func (s *MemoryStore) SaveSession(_ context.Context, session store.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.TokenHash] = session
	return nil
}

func (s *MemoryStore) LookupSession(_ context.Context, tokenHash string) (store.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[tokenHash]
	if !ok {
		return store.Session{}, store.ErrSessionNotFound
	}
	return session, nil
}

func (s *MemoryStore) RevokeSession(_ context.Context, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, tokenHash)
	return nil
}

// Sweep drops expired sessions and returns how many were removed.
func (s *MemoryStore) Sweep() int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for hash, session := range s.sessions {
		if !now.Before(session.ExpiresAt) {
			delete(s.sessions, hash)
			removed++
		}
	}
	return removed
}

func (s *MemoryStore) Ping(context.Context) error {
	return nil
}
