package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/aretw0/photobooth/pkg/domain"
	"github.com/aretw0/photobooth/pkg/ports"
)

// Store implements ports.SessionStore in memory.
// Safe for concurrent use. Sessions live as long as the process.
type Store struct {
	data map[string]ports.BoothSession
	mu   sync.RWMutex
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[string]ports.BoothSession),
	}
}

// Save stores the session.
func (s *Store) Save(ctx context.Context, sessionID string, session ports.BoothSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[sessionID] = session
	return nil
}

// Load retrieves the session.
func (s *Store) Load(ctx context.Context, sessionID string) (ports.BoothSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.data[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

// Delete removes the session.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, sessionID)
	return nil
}

// List returns active sessions, sorted.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := make([]string, 0, len(s.data))
	for id := range s.data {
		sessions = append(sessions, id)
	}
	sort.Strings(sessions)
	return sessions, nil
}
