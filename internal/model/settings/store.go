package settings

import (
	"context"
	"sync"
)

// Store persists the single settings record.
// Load reports ok=false when nothing has been saved yet.
type Store interface {
	Load(ctx context.Context) (Settings, bool, error)
	Save(ctx context.Context, s Settings) error
}

// MemoryStore implements Store in memory, suitable for tests and ephemeral runs.
type MemoryStore struct {
	mu    sync.Mutex
	value Settings
	saved bool
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load(context.Context) (Settings, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value, s.saved, nil
}

func (s *MemoryStore) Save(_ context.Context, v Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = v
	s.saved = true
	return nil
}
