// Package memorystore is an in-memory implementation of credstore.Store.
package memorystore

import (
	"context"
	"sync"

	"github.com/hermod-chat/hermod/credstore"
)

// Store holds credential blobs in a map. The zero value is not usable; call New.
type Store struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func New() *Store {
	return &Store{blobs: make(map[string][]byte)}
}

func (s *Store) Load(ctx context.Context, sessionID string) ([]byte, error) {
	s.mu.RLock()
	blob, ok := s.blobs[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, credstore.ErrNotFound
	}
	return append([]byte(nil), blob...), nil
}

func (s *Store) Save(ctx context.Context, sessionID string, creds []byte) error {
	s.mu.Lock()
	s.blobs[sessionID] = append([]byte(nil), creds...)
	s.mu.Unlock()
	return nil
}

func (s *Store) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	delete(s.blobs, sessionID)
	s.mu.Unlock()
	return nil
}

var _ credstore.Store = (*Store)(nil)
