package lock

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	token     string
	expiresAt time.Time
}

// MemoryStore is an in-process lock store. It serves single-node degraded
// deployments (quorum of one) and tests; it provides no cross-process
// exclusion.
type MemoryStore struct {
	mu      sync.Mutex
	name    string
	entries map[string]memoryEntry
}

func NewMemoryStore(name string) *MemoryStore {
	return &MemoryStore{
		name:    name,
		entries: make(map[string]memoryEntry),
	}
}

func (s *MemoryStore) TryAcquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if e, ok := s.entries[key]; ok && now.Before(e.expiresAt) && e.token != token {
		return false, nil
	}
	s.entries[key] = memoryEntry{token: token, expiresAt: now.Add(ttl)}
	return true, nil
}

func (s *MemoryStore) Release(ctx context.Context, key, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[key]; ok && e.token == token {
		delete(s.entries, key)
	}
	return nil
}

func (s *MemoryStore) Name() string {
	return "memory:" + s.name
}

var _ Store = (*MemoryStore)(nil)
