// Package retrieval runs lexical and vector retrieval against the chunk
// indexes and fuses their document-level hits.
package retrieval

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/em-ech/siftopsv1-sub000/internal/contextutil"
)

// Hit is a document-level retrieval result. Score is in [0, 1], higher is better.
type Hit struct {
	ItemID string
	Score  float64
}

// Filters narrows retrieval.
type Filters struct {
	Category string
}

// RetryPolicy bounds retries of index reads.
type RetryPolicy struct {
	MaxAttempts     uint
	InitialInterval time.Duration
}

// DefaultRetryPolicy retries index reads twice after the first attempt.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 3, InitialInterval: 50 * time.Millisecond}

func withRetry[T any](ctx context.Context, policy RetryPolicy, op string, fn func() (T, error)) (T, error) {
	if policy.MaxAttempts == 0 {
		policy = DefaultRetryPolicy
	}
	b := backoff.NewExponentialBackOff()
	if policy.InitialInterval > 0 {
		b.InitialInterval = policy.InitialInterval
	}

	attempt := 0
	return backoff.Retry(ctx, func() (T, error) {
		attempt++
		v, err := fn()
		if err == nil {
			return v, nil
		}
		if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			var zero T
			return zero, backoff.Permanent(err)
		}
		contextutil.LoggerFromContext(ctx).DebugContext(ctx, "retrieval attempt failed", "op", op, "attempt", attempt, "error", err)
		return v, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(policy.MaxAttempts))
}

// collapse keeps the best score per item, orders by score descending then id,
// and truncates to limit.
func collapse(scores map[string]float64, limit int) []Hit {
	hits := make([]Hit, 0, len(scores))
	for id, s := range scores {
		hits = append(hits, Hit{ItemID: id, Score: s})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ItemID < hits[j].ItemID
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

func keepMax(scores map[string]float64, id string, s float64) {
	if cur, ok := scores[id]; !ok || s > cur {
		scores[id] = s
	}
}
