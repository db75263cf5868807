package retrieval

import (
	"context"
	"fmt"

	"github.com/em-ech/siftopsv1-sub000/internal/storage"
)

// LexicalIndex is the full-text side of the chunk store.
type LexicalIndex interface {
	SearchLexical(ctx context.Context, tenantID, matchExpr, category string, limit int) ([]storage.ChunkHit, error)
}

// LexicalRetriever ranks documents by BM25 over their chunks.
type LexicalRetriever struct {
	index LexicalIndex
	retry RetryPolicy
}

// NewLexicalRetriever creates a LexicalRetriever.
func NewLexicalRetriever(index LexicalIndex, retry RetryPolicy) *LexicalRetriever {
	return &LexicalRetriever{index: index, retry: retry}
}

// Search returns up to limit documents matching query. A query with no
// searchable terms returns no hits. Each document takes its best chunk score,
// squashed into [0, 1) as s/(s+1).
func (r *LexicalRetriever) Search(ctx context.Context, tenantID, query string, filters Filters, limit int) ([]Hit, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than 0")
	}
	expr := MatchExpression(query)
	if expr == "" {
		return nil, nil
	}

	chunks, err := withRetry(ctx, r.retry, "lexical", func() ([]storage.ChunkHit, error) {
		return r.index.SearchLexical(ctx, tenantID, expr, filters.Category, limit*3)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search lexical index: %w", err)
	}

	scores := make(map[string]float64, len(chunks))
	for _, c := range chunks {
		if c.Score <= 0 {
			continue
		}
		keepMax(scores, c.DocumentID, c.Score/(c.Score+1))
	}
	return collapse(scores, limit), nil
}
