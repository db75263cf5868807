package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/em-ech/siftopsv1-sub000/internal/embedcache"
	"github.com/em-ech/siftopsv1-sub000/internal/indexer"
)

func TestHealthHandler(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("connection refused") }

	tests := []struct {
		name           string
		critical       map[string]HealthCheck
		optional       map[string]HealthCheck
		breaker        string
		expectedStatus int
		expectedState  string
	}{
		{"all healthy", map[string]HealthCheck{"database": ok, "vector_store": ok}, map[string]HealthCheck{"redis": ok}, "closed", http.StatusOK, "healthy"},
		{"redis down degrades", map[string]HealthCheck{"database": ok}, map[string]HealthCheck{"redis": down}, "closed", http.StatusOK, "degraded"},
		{"open breaker degrades", map[string]HealthCheck{"database": ok}, nil, "open", http.StatusOK, "degraded"},
		{"vector store down", map[string]HealthCheck{"database": ok, "vector_store": down}, nil, "closed", http.StatusServiceUnavailable, "unhealthy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			breaker := tt.breaker
			h := NewHealthHandler(tt.critical, tt.optional, func() string { return breaker })
			w := do(t, h, http.MethodGet, "/api/health", "")
			if w.Code != tt.expectedStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.expectedStatus)
			}
			var resp HealthResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if resp.Status != tt.expectedState {
				t.Errorf("status = %q, want %q (issues %v)", resp.Status, tt.expectedState, resp.Issues)
			}
			if resp.Checks["generation_breaker"] != tt.breaker {
				t.Errorf("breaker check = %q, want %q", resp.Checks["generation_breaker"], tt.breaker)
			}
		})
	}
}

type fakeCoverage struct{ err error }

func (f fakeCoverage) Stats(_ context.Context, tenantID string) (*indexer.CoverageStats, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &indexer.CoverageStats{Documents: 3, Chunks: 7, ChunkerVersion: indexer.ChunkerVersion}, nil
}

type fakeCache embedcache.Stats

func (f fakeCache) Stats() embedcache.Stats { return embedcache.Stats(f) }

func TestStatsHandler(t *testing.T) {
	h := NewStatsHandler(fakeCoverage{}, fakeCache{Entries: 2, Capacity: 16, Hits: 5, Misses: 2})
	w := do(t, h, http.MethodGet, "/api/v1/stats", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp StatsResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.CoverageStats == nil || resp.Documents != 3 || resp.Chunks != 7 {
		t.Errorf("coverage = %+v", resp.CoverageStats)
	}
	if resp.EmbeddingCache.Hits != 5 || resp.EmbeddingCache.Capacity != 16 {
		t.Errorf("cache = %+v", resp.EmbeddingCache)
	}

	w = do(t, NewStatsHandler(fakeCoverage{err: errors.New("db closed")}, fakeCache{}), http.MethodGet, "/api/v1/stats", "")
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}
