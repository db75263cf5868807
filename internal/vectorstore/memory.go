package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// MemoryStore is an in-process VectorStore using brute-force cosine similarity.
// It backs development setups without Qdrant and tests.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]Point
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]map[string]Point)}
}

// EnsureCollection creates the collection if it does not exist.
func (s *MemoryStore) EnsureCollection(_ context.Context, collection string, _ int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[collection]; !ok {
		s.collections[collection] = make(map[string]Point)
	}
	return nil
}

// Upsert inserts or updates points in the collection.
func (s *MemoryStore) Upsert(_ context.Context, collection string, points []Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[collection]
	if !ok {
		c = make(map[string]Point)
		s.collections[collection] = c
	}
	for _, p := range points {
		vec := make([]float32, len(p.Vec))
		copy(vec, p.Vec)
		meta := make(map[string]any, len(p.Payload))
		for k, v := range p.Payload {
			meta[k] = v
		}
		c[p.ID] = Point{ID: p.ID, Vec: vec, Payload: meta}
	}
	return nil
}

// Search returns the k most similar points matching filters.
func (s *MemoryStore) Search(_ context.Context, collection string, query []float32, k int, filters map[string]string) ([]Hit, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be greater than 0")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []Hit
	for _, p := range s.collections[collection] {
		if !matches(p.Payload, filters) {
			continue
		}
		results = append(results, Hit{PointID: p.ID, Score: cosine(query, p.Vec), Payload: p.Payload})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].PointID < results[j].PointID
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Delete removes points by their IDs.
func (s *MemoryStore) Delete(_ context.Context, collection string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.collections[collection], id)
	}
	return nil
}

// CollectionExists checks if a collection exists.
func (s *MemoryStore) CollectionExists(_ context.Context, collection string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.collections[collection]
	return ok, nil
}

// Len returns the number of points in a collection.
func (s *MemoryStore) Len(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.collections[collection])
}

func matches(meta map[string]any, filters map[string]string) bool {
	for key, want := range filters {
		if want == "" {
			continue
		}
		if got, ok := meta[key]; !ok || fmt.Sprint(got) != want {
			return false
		}
	}
	return true
}

func cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
