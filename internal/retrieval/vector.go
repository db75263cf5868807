package retrieval

import (
	"context"
	"fmt"

	"github.com/em-ech/siftopsv1-sub000/internal/contextutil"
	"github.com/em-ech/siftopsv1-sub000/internal/vectorstore"
)

// LiveFilter reports which chunk IDs still exist in the primary store.
type LiveFilter interface {
	FilterLive(ctx context.Context, ids []string) (map[string]struct{}, error)
}

// VectorRetriever ranks documents by cosine similarity of their chunks.
type VectorRetriever struct {
	store      vectorstore.VectorStore
	live       LiveFilter
	collection string
	retry      RetryPolicy
}

// NewVectorRetriever creates a VectorRetriever. live may be nil to skip the
// stale-point check.
func NewVectorRetriever(store vectorstore.VectorStore, live LiveFilter, collection string, retry RetryPolicy) *VectorRetriever {
	return &VectorRetriever{store: store, live: live, collection: collection, retry: retry}
}

// Nearest returns up to limit documents closest to vec.
// Points whose chunk no longer exists (a replaced document version) are dropped.
func (r *VectorRetriever) Nearest(ctx context.Context, tenantID string, vec []float32, filters Filters, limit int) ([]Hit, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than 0")
	}

	payloadFilter := map[string]string{
		vectorstore.MetaTenantID: tenantID,
		vectorstore.MetaCategory: filters.Category,
	}
	points, err := withRetry(ctx, r.retry, "vector", func() ([]vectorstore.Hit, error) {
		return r.store.Search(ctx, r.collection, vec, limit*3, payloadFilter)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search vector index: %w", err)
	}
	if len(points) == 0 {
		return nil, nil
	}

	var live map[string]struct{}
	if r.live != nil {
		ids := make([]string, len(points))
		for i, p := range points {
			ids[i] = p.PointID
		}
		live, err = r.live.FilterLive(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("failed to check chunk liveness: %w", err)
		}
	}

	scores := make(map[string]float64, len(points))
	stale := 0
	for _, p := range points {
		if live != nil {
			if _, ok := live[p.PointID]; !ok {
				stale++
				continue
			}
		}
		docID, ok := p.DocumentID()
		if !ok {
			continue
		}
		keepMax(scores, docID, clamp01(float64(p.Score)))
	}
	if stale > 0 {
		contextutil.LoggerFromContext(ctx).DebugContext(ctx, "dropped stale vector points", "count", stale)
	}
	return collapse(scores, limit), nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
