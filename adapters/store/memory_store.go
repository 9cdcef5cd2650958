package store

import (
	"context"
	"sync"
	"time"

	"github.com/layer-3/wconnect"
)

// MemoryStore is an in-memory implementation of the Store interface
type MemoryStore struct {
	records map[string]entry
	mu      sync.RWMutex
}

type entry struct {
	record  string
	expires time.Time
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() wconnect.Store {
	return &MemoryStore{
		records: make(map[string]entry),
	}
}

// Save stores a session record under the client id
func (s *MemoryStore) Save(ctx context.Context, clientID, record string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	expires := time.Now().Add(ttl)
	s.records[clientID] = entry{record: record, expires: expires}

	// Start a cleanup goroutine
	go func() {
		time.Sleep(ttl)

		s.mu.Lock()
		defer s.mu.Unlock()

		// Only delete if the expiry time hasn't changed
		if stored, exists := s.records[clientID]; exists && !stored.expires.After(expires) {
			delete(s.records, clientID)
		}
	}()

	return nil
}

// Load retrieves a session record by client id
func (s *MemoryStore) Load(ctx context.Context, clientID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, exists := s.records[clientID]
	if !exists {
		return "", wconnect.ErrNoSession
	}
	if time.Now().After(stored.expires) {
		return "", wconnect.ErrNoSession
	}

	return stored.record, nil
}
