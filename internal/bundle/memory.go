package bundle

import (
	"context"
	"sync"
	"time"

	"github.com/em-ech/siftopsv1-sub000/internal/service"
)

// MemoryStore keeps bundles in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	bundles map[string]*Bundle
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{bundles: make(map[string]*Bundle)}
}

func memoryKey(tenantID, id string) string {
	return tenantID + "\x00" + id
}

func (s *MemoryStore) Create(_ context.Context, b *Bundle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := memoryKey(b.TenantID, b.ID)
	if _, ok := s.bundles[key]; ok {
		return ErrExists
	}
	s.bundles[key] = b.Clone()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, tenantID, id string) (*Bundle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bundles[memoryKey(tenantID, id)]
	if !ok {
		return nil, service.ErrNotFound
	}
	return b.Clone(), nil
}

func (s *MemoryStore) Update(_ context.Context, tenantID, id string, fn MutateFunc) (*Bundle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := memoryKey(tenantID, id)
	current, ok := s.bundles[key]
	if !ok {
		return nil, service.ErrNotFound
	}
	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.UpdatedAt = time.Now().UTC()
	s.bundles[key] = next
	return next.Clone(), nil
}

func (s *MemoryStore) Delete(_ context.Context, tenantID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := memoryKey(tenantID, id)
	if _, ok := s.bundles[key]; !ok {
		return service.ErrNotFound
	}
	delete(s.bundles, key)
	return nil
}
