package handlers

import (
	"context"
	"net/http"

	"github.com/em-ech/siftopsv1-sub000/internal/embedcache"
	"github.com/em-ech/siftopsv1-sub000/internal/indexer"
)

// CoverageReporter reports index coverage for a tenant.
type CoverageReporter interface {
	Stats(ctx context.Context, tenantID string) (*indexer.CoverageStats, error)
}

// CacheStatser exposes embedding cache counters.
type CacheStatser interface {
	Stats() embedcache.Stats
}

// StatsHandler serves GET /api/v1/stats.
type StatsHandler struct {
	coverage CoverageReporter
	cache    CacheStatser
}

// NewStatsHandler creates a new StatsHandler.
func NewStatsHandler(coverage CoverageReporter, cache CacheStatser) *StatsHandler {
	return &StatsHandler{coverage: coverage, cache: cache}
}

// StatsResponse combines index coverage with embedding cache counters.
//
// swagger:model StatsResponse
type StatsResponse struct {
	*indexer.CoverageStats
	EmbeddingCache embedcache.Stats `json:"embedding_cache"`
}

func (h *StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stats, err := h.coverage.Stats(ctx, tenantID(r))
	if err != nil {
		writeServiceError(ctx, w, err, "Failed to compute stats")
		return
	}
	writeJSON(ctx, w, http.StatusOK, StatsResponse{CoverageStats: stats, EmbeddingCache: h.cache.Stats()})
}
