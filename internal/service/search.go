package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/em-ech/siftopsv1-sub000/internal/contextutil"
	"github.com/em-ech/siftopsv1-sub000/internal/embedcache"
	"github.com/em-ech/siftopsv1-sub000/internal/ranking"
	"github.com/em-ech/siftopsv1-sub000/internal/retrieval"
	"github.com/em-ech/siftopsv1-sub000/internal/storage"
)

const (
	DefaultTopK             = 10
	MaxTopK                 = 50
	DefaultRetrievalTimeout = 5 * time.Second
)

var tracer = otel.Tracer("github.com/em-ech/siftopsv1-sub000/internal/service")

// QueryEmbedder embeds query text.
type QueryEmbedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// LexicalSearcher retrieves documents by full-text relevance.
type LexicalSearcher interface {
	Search(ctx context.Context, tenantID, query string, filters retrieval.Filters, limit int) ([]retrieval.Hit, error)
}

// VectorSearcher retrieves documents by embedding similarity.
type VectorSearcher interface {
	Nearest(ctx context.Context, tenantID string, vec []float32, filters retrieval.Filters, limit int) ([]retrieval.Hit, error)
}

// DirectiveResolver returns the effective directive per item for a query.
type DirectiveResolver interface {
	Resolve(ctx context.Context, tenantID, query, category string) (map[string]ranking.Directive, error)
}

// SearchConfig tunes the search service.
type SearchConfig struct {
	DefaultTopK      int
	MaxTopK          int
	MinConfidence    float64
	FreshnessWindow  time.Duration
	RetrievalTimeout time.Duration
}

// SearchRequest is a free-text query.
type SearchRequest struct {
	TenantID string
	Query    string
	Category string
	TopK     int
	Debug    bool
}

// SearchResult is one ranked document.
type SearchResult struct {
	ItemID    string
	Title     string
	URL       string
	Category  string
	SourceID  string
	Score     float64
	Lexical   *float64
	Semantic  *float64
	Pinned    bool
	Directive *ranking.Directive
}

// SearchDebug carries per-stage counts and timings.
type SearchDebug struct {
	LexicalHits    int
	VectorHits     int
	Candidates     int
	Injected       int
	CacheHit       bool
	Degraded       []string
	EmbedMillis    int64
	RetrieveMillis int64
	RankMillis     int64
}

// SearchResponse is the gated result of a search.
type SearchResponse struct {
	Outcome  ranking.Outcome
	Results  []SearchResult
	TopScore float64
	Debug    *SearchDebug
}

// SearchService runs hybrid retrieval, applies ranking policy and gates the result.
type SearchService struct {
	cache    *embedcache.Cache
	embedder QueryEmbedder
	lexical  LexicalSearcher
	vector   VectorSearcher
	docs     storage.DocumentStore
	resolver DirectiveResolver
	cfg      SearchConfig
	now      func() time.Time
}

// NewSearchService creates a SearchService. Zero config values take defaults.
func NewSearchService(
	cache *embedcache.Cache,
	embedder QueryEmbedder,
	lexical LexicalSearcher,
	vector VectorSearcher,
	docs storage.DocumentStore,
	resolver DirectiveResolver,
	cfg SearchConfig,
) *SearchService {
	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = DefaultTopK
	}
	if cfg.MaxTopK <= 0 {
		cfg.MaxTopK = MaxTopK
	}
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = ranking.DefaultMinConfidence
	}
	if cfg.FreshnessWindow <= 0 {
		cfg.FreshnessWindow = ranking.DefaultFreshnessWindow
	}
	if cfg.RetrievalTimeout <= 0 {
		cfg.RetrievalTimeout = DefaultRetrievalTimeout
	}
	return &SearchService{
		cache:    cache,
		embedder: embedder,
		lexical:  lexical,
		vector:   vector,
		docs:     docs,
		resolver: resolver,
		cfg:      cfg,
		now:      time.Now,
	}
}

type retrieved struct {
	lexical  []retrieval.Hit
	vector   []retrieval.Hit
	lexErr   error
	vecErr   error
	cacheHit bool
	embedDur time.Duration
}

// Search runs the full query pipeline.
// When one retriever fails the search continues with the other; when both
// fail it returns an UpstreamError.
func (s *SearchService) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	logger := contextutil.LoggerFromContext(ctx)

	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, &ValidationError{Field: "query", Message: "cannot be empty"}
	}
	if req.TenantID == "" {
		return nil, &ValidationError{Field: "tenant_id", Message: "cannot be empty"}
	}
	topK := req.TopK
	if topK <= 0 {
		topK = s.cfg.DefaultTopK
	}
	if topK > s.cfg.MaxTopK {
		topK = s.cfg.MaxTopK
	}

	ctx, span := tracer.Start(ctx, "search")
	defer span.End()
	span.SetAttributes(
		attribute.String("search.tenant_id", req.TenantID),
		attribute.String("search.category", req.Category),
		attribute.Int("search.top_k", topK),
	)

	debug := &SearchDebug{}
	filters := retrieval.Filters{Category: req.Category}

	start := time.Now()
	r, err := s.retrieve(ctx, req.TenantID, query, filters, topK*2)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "retrieval abandoned")
		return nil, err
	}
	debug.RetrieveMillis = time.Since(start).Milliseconds()
	debug.EmbedMillis = r.embedDur.Milliseconds()
	debug.CacheHit = r.cacheHit
	debug.LexicalHits = len(r.lexical)
	debug.VectorHits = len(r.vector)

	switch {
	case r.lexErr != nil && r.vecErr != nil:
		err := Upstream("retrieve", errors.Join(r.lexErr, r.vecErr))
		span.RecordError(err)
		span.SetStatus(codes.Error, "all retrievers failed")
		logger.ErrorContext(ctx, "search retrieval failed", "lexical_error", r.lexErr, "vector_error", r.vecErr)
		return nil, err
	case r.lexErr != nil:
		debug.Degraded = append(debug.Degraded, "lexical")
		logger.WarnContext(ctx, "lexical retrieval failed, continuing with vector only", "error", r.lexErr)
	case r.vecErr != nil:
		debug.Degraded = append(debug.Degraded, "vector")
		logger.WarnContext(ctx, "vector retrieval failed, continuing with lexical only", "error", r.vecErr)
	}
	span.SetAttributes(attribute.StringSlice("search.degraded", debug.Degraded))

	rankStart := time.Now()
	directives, err := s.resolver.Resolve(ctx, req.TenantID, query, req.Category)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve directives: %w", err)
	}

	fused := retrieval.Fuse(r.lexical, r.vector)
	candidates, docs, injected, err := s.hydrate(ctx, req.TenantID, req.Category, fused, directives)
	if err != nil {
		return nil, err
	}
	debug.Candidates = len(candidates)
	debug.Injected = injected

	ranked := ranking.Rerank(candidates, directives, ranking.Options{
		TopK:            topK,
		MinConfidence:   s.cfg.MinConfidence,
		FreshnessWindow: s.cfg.FreshnessWindow,
		Now:             s.now(),
	})
	debug.RankMillis = time.Since(rankStart).Milliseconds()

	resp := &SearchResponse{
		Outcome:  ranked.Outcome,
		Results:  make([]SearchResult, 0, len(ranked.Results)),
		TopScore: ranked.TopScore,
	}
	for _, res := range ranked.Results {
		doc := docs[res.ItemID]
		resp.Results = append(resp.Results, SearchResult{
			ItemID:    res.ItemID,
			Title:     doc.Title,
			URL:       doc.URL,
			Category:  doc.Category,
			SourceID:  doc.SourceID,
			Score:     res.Score,
			Lexical:   res.Lexical,
			Semantic:  res.Semantic,
			Pinned:    res.Pinned,
			Directive: res.Directive,
		})
	}
	if req.Debug {
		resp.Debug = debug
	}

	span.SetAttributes(
		attribute.String("search.outcome", string(resp.Outcome)),
		attribute.Int("search.results", len(resp.Results)),
		attribute.Float64("search.top_score", resp.TopScore),
	)
	logger.InfoContext(ctx, "search completed",
		"tenant_id", req.TenantID,
		"outcome", resp.Outcome,
		"results", len(resp.Results),
		"candidates", len(candidates),
		"top_score", resp.TopScore,
	)
	return resp, nil
}

// retrieve fans out to both retrievers. They run on a context detached from
// the caller's cancellation and bounded by RetrievalTimeout; if the caller
// goes away first, retrieve returns its error and the retrievers finish in
// the background with their results discarded.
func (s *SearchService) retrieve(ctx context.Context, tenantID, query string, filters retrieval.Filters, limit int) (*retrieved, error) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.RetrievalTimeout)

	r := &retrieved{}
	var g errgroup.Group
	g.Go(func() error {
		r.lexical, r.lexErr = s.lexical.Search(rctx, tenantID, query, filters, limit)
		return nil
	})
	g.Go(func() error {
		embedStart := time.Now()
		vec, hit, err := s.cache.GetOrCompute(rctx, query, func(ctx context.Context, key string) ([]float32, error) {
			vecs, err := s.embedder.EmbedTexts(ctx, []string{key})
			if err != nil {
				return nil, err
			}
			if len(vecs) != 1 {
				return nil, fmt.Errorf("expected 1 embedding, got %d", len(vecs))
			}
			return vecs[0], nil
		})
		r.embedDur = time.Since(embedStart)
		r.cacheHit = hit
		if err != nil {
			r.vecErr = fmt.Errorf("failed to embed query: %w", err)
			return nil
		}
		r.vector, r.vecErr = s.vector.Nearest(rctx, tenantID, vec, filters, limit)
		return nil
	})

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		cancel()
		close(done)
	}()

	select {
	case <-done:
		return r, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// hydrate loads document metadata for fused candidates, drops candidates
// whose document is gone, and injects pinned documents that retrieval missed.
func (s *SearchService) hydrate(
	ctx context.Context,
	tenantID, category string,
	fused map[string]*ranking.Candidate,
	directives map[string]ranking.Directive,
) ([]ranking.Candidate, map[string]*storage.DocumentRecord, int, error) {
	ids := make([]string, 0, len(fused))
	for id := range fused {
		ids = append(ids, id)
	}
	for id, d := range directives {
		if _, ok := fused[id]; !ok && d.Action == ranking.ActionPin {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, map[string]*storage.DocumentRecord{}, 0, nil
	}

	docs, err := s.docs.GetMany(ctx, tenantID, ids)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("failed to load documents: %w", err)
	}

	candidates := make([]ranking.Candidate, 0, len(ids))
	injected := 0
	for _, id := range ids {
		doc, ok := docs[id]
		if !ok {
			continue
		}
		c, retrieved := fused[id]
		if !retrieved {
			if category != "" && doc.Category != category {
				continue
			}
			c = &ranking.Candidate{ItemID: id}
			injected++
		}
		c.Available = doc.Available
		c.PublishedAt = doc.PublishedAt
		candidates = append(candidates, *c)
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].ItemID < candidates[j].ItemID
	})
	return candidates, docs, injected, nil
}
