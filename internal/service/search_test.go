package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/em-ech/siftopsv1-sub000/internal/embedcache"
	"github.com/em-ech/siftopsv1-sub000/internal/indexer"
	"github.com/em-ech/siftopsv1-sub000/internal/ranking"
	"github.com/em-ech/siftopsv1-sub000/internal/retrieval"
	"github.com/em-ech/siftopsv1-sub000/internal/service"
	"github.com/em-ech/siftopsv1-sub000/internal/storage"
	"github.com/em-ech/siftopsv1-sub000/internal/testutil"
	"github.com/em-ech/siftopsv1-sub000/internal/vectorstore"
)

const (
	testTenant     = "t1"
	testCollection = "chunks"
)

type searchFixture struct {
	svc        *service.SearchService
	pipeline   *indexer.Pipeline
	directives *storage.DirectiveRepo
	embedder   *testutil.HashEmbedder
	lexical    service.LexicalSearcher
	vector     service.VectorSearcher
	docs       *storage.DocumentRepo
	cache      *embedcache.Cache
}

func newSearchFixture(t *testing.T) *searchFixture {
	t.Helper()
	db := testutil.NewDB(t)
	chunker, err := indexer.NewChunker(800, 120)
	if err != nil {
		t.Fatal(err)
	}

	docs := storage.NewDocumentRepo(db)
	chunks := storage.NewChunkRepo(db)
	vectors := vectorstore.NewMemoryStore()
	f := &searchFixture{
		directives: storage.NewDirectiveRepo(db),
		embedder:   testutil.NewHashEmbedder(64),
		docs:       docs,
		cache:      embedcache.New(16, time.Minute),
	}
	f.pipeline = indexer.NewPipeline(docs, chunks, f.embedder, vectors, testCollection, chunker)
	f.lexical = retrieval.NewLexicalRetriever(chunks, retrieval.DefaultRetryPolicy)
	f.vector = retrieval.NewVectorRetriever(vectors, chunks, testCollection, retrieval.DefaultRetryPolicy)
	f.rebuild(service.SearchConfig{})
	return f
}

func (f *searchFixture) rebuild(cfg service.SearchConfig) {
	f.svc = service.NewSearchService(f.cache, f.embedder, f.lexical, f.vector, f.docs, ranking.NewResolver(f.directives), cfg)
}

func (f *searchFixture) ingest(t *testing.T, docs ...indexer.Document) {
	t.Helper()
	for _, d := range docs {
		if d.TenantID == "" {
			d.TenantID = testTenant
		}
		if d.SourceID == "" {
			d.SourceID = "catalog"
		}
		if _, err := f.pipeline.Ingest(context.Background(), d); err != nil {
			t.Fatalf("Ingest(%s) error = %v", d.ExternalID, err)
		}
	}
}

func (f *searchFixture) directive(t *testing.T, d ranking.Directive) {
	t.Helper()
	d.TenantID = testTenant
	if err := f.directives.Upsert(context.Background(), &d); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
}

func resultIDs(results []service.SearchResult) []string {
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.ItemID
	}
	return ids
}

func TestSearch_SingleDocumentAboveThreshold(t *testing.T) {
	f := newSearchFixture(t)
	f.ingest(t, indexer.Document{
		ExternalID: "boy-brow",
		Title:      "Boy Brow",
		Category:   "brows",
		Body:       "Boy Brow is a brow gel, $18",
	})

	resp, err := f.svc.Search(context.Background(), service.SearchRequest{TenantID: testTenant, Query: "brow gel"})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if resp.Outcome != ranking.OutcomeOK {
		t.Fatalf("Outcome = %v, want %v (top score %v)", resp.Outcome, ranking.OutcomeOK, resp.TopScore)
	}
	if len(resp.Results) != 1 || resp.Results[0].ItemID != "boy-brow" {
		t.Fatalf("Results = %v, want [boy-brow]", resultIDs(resp.Results))
	}
	got := resp.Results[0]
	if got.Score < ranking.DefaultMinConfidence {
		t.Errorf("Score = %v, want >= %v", got.Score, ranking.DefaultMinConfidence)
	}
	if got.Lexical == nil || got.Semantic == nil {
		t.Errorf("expected both component scores, got lexical=%v semantic=%v", got.Lexical, got.Semantic)
	}
	if got.Title != "Boy Brow" || got.Category != "brows" || got.SourceID != "catalog" {
		t.Errorf("metadata = %+v", got)
	}
}

func TestSearch_ExcludedItemNeverReturned(t *testing.T) {
	f := newSearchFixture(t)
	f.ingest(t,
		indexer.Document{ExternalID: "x", Title: "Brow Gel Deluxe", Category: "brows", Body: "Brow gel brow gel tinted brow gel for fuller brows."},
		indexer.Document{ExternalID: "y", Title: "Brow Pencil", Category: "brows", Body: "A fine brow pencil for precise strokes and some gel finish."},
		indexer.Document{ExternalID: "z", Title: "Lip Balm", Category: "lips", Body: "Tinted lip balm with a soft gel texture."},
	)

	before, err := f.svc.Search(context.Background(), service.SearchRequest{TenantID: testTenant, Query: "brow gel"})
	if err != nil {
		t.Fatal(err)
	}
	if len(before.Results) == 0 || before.Results[0].ItemID != "x" {
		t.Fatalf("x should rank first before the directive, got %v", resultIDs(before.Results))
	}

	f.directive(t, ranking.Directive{Scope: ranking.ScopeGlobal, Target: "x", Action: ranking.ActionExclude})

	queries := []string{"brow gel", "tinted", "gel", "Brow Gel Deluxe", "fuller brows"}
	for _, q := range queries {
		t.Run(q, func(t *testing.T) {
			resp, err := f.svc.Search(context.Background(), service.SearchRequest{TenantID: testTenant, Query: q, TopK: 50})
			if err != nil {
				t.Fatalf("Search() error = %v", err)
			}
			for _, r := range resp.Results {
				if r.ItemID == "x" {
					t.Errorf("excluded item returned for %q: %v", q, resultIDs(resp.Results))
				}
			}
		})
	}
}

func TestSearch_PinInjectsUnretrievedDocument(t *testing.T) {
	f := newSearchFixture(t)
	f.ingest(t,
		indexer.Document{ExternalID: "gel", Title: "Brow Gel", Category: "brows", Body: "Brow gel for all day hold."},
		indexer.Document{ExternalID: "kit", Title: "Holiday Kit", Category: "brows", Body: "Seasonal bundle of minis."},
		indexer.Document{ExternalID: "balm", Title: "Balm", Category: "lips", Body: "Seasonal lip care."},
	)
	// Lexical only, so the pinned documents are never retrieved.
	f.vector = emptyVector{}
	f.rebuild(service.SearchConfig{})
	f.directive(t, ranking.Directive{Scope: ranking.ScopeQuery, ScopeValue: "brow gel", Target: "kit", Action: ranking.ActionPin, Weight: 2})
	f.directive(t, ranking.Directive{Scope: ranking.ScopeQuery, ScopeValue: "brow gel", Target: "balm", Action: ranking.ActionPin})
	f.directive(t, ranking.Directive{Scope: ranking.ScopeQuery, ScopeValue: "brow gel", Target: "deleted", Action: ranking.ActionPin, Weight: 3})

	tests := []struct {
		name     string
		category string
		want     []string
	}{
		{name: "no category", want: []string{"kit", "balm", "gel"}},
		{name: "category filters pins", category: "brows", want: []string{"kit", "gel"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := f.svc.Search(context.Background(), service.SearchRequest{
				TenantID: testTenant,
				Query:    "Brow  GEL",
				Category: tt.category,
				Debug:    true,
			})
			if err != nil {
				t.Fatalf("Search() error = %v", err)
			}
			got := resultIDs(resp.Results)
			if len(got) != len(tt.want) {
				t.Fatalf("Results = %v, want %v", got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Fatalf("Results = %v, want %v", got, tt.want)
				}
			}
			pins := resp.Results[:len(tt.want)-1]
			for _, r := range pins {
				if !r.Pinned || r.Score != ranking.PinnedScore {
					t.Errorf("%s: Pinned = %v, Score = %v", r.ItemID, r.Pinned, r.Score)
				}
				if r.Lexical != nil || r.Semantic != nil {
					t.Errorf("%s: injected pin should have no component scores", r.ItemID)
				}
			}
			if resp.Debug == nil || resp.Debug.Injected != len(pins) {
				t.Errorf("Debug = %+v, want Injected %d", resp.Debug, len(pins))
			}
		})
	}
}

func TestSearch_NoResults(t *testing.T) {
	f := newSearchFixture(t)

	resp, err := f.svc.Search(context.Background(), service.SearchRequest{TenantID: testTenant, Query: "anything"})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if resp.Outcome != ranking.OutcomeNoResults || len(resp.Results) != 0 {
		t.Errorf("got %v with %d results, want %v", resp.Outcome, len(resp.Results), ranking.OutcomeNoResults)
	}
}

func TestSearch_ConfidenceGate(t *testing.T) {
	f := newSearchFixture(t)
	f.ingest(t, indexer.Document{ExternalID: "gel", Title: "Brow Gel", Body: "Brow gel for all day hold."})
	f.rebuild(service.SearchConfig{MinConfidence: 0.99})

	resp, err := f.svc.Search(context.Background(), service.SearchRequest{TenantID: testTenant, Query: "gel"})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if resp.Outcome != ranking.OutcomeNoConfidentMatch {
		t.Errorf("Outcome = %v, want %v", resp.Outcome, ranking.OutcomeNoConfidentMatch)
	}
	if len(resp.Results) != 0 {
		t.Errorf("gated response should carry no results, got %v", resultIDs(resp.Results))
	}
	if resp.TopScore <= 0 || resp.TopScore >= 0.99 {
		t.Errorf("TopScore = %v", resp.TopScore)
	}
}

func TestSearch_TenantIsolation(t *testing.T) {
	f := newSearchFixture(t)
	f.ingest(t,
		indexer.Document{TenantID: "a", ExternalID: "gel", Title: "Brow Gel", Body: "Brow gel for all day hold."},
		indexer.Document{TenantID: "b", ExternalID: "gel", Title: "Other Gel", Body: "Brow gel from tenant b."},
	)

	resp, err := f.svc.Search(context.Background(), service.SearchRequest{TenantID: "a", Query: "brow gel"})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 1 || resp.Results[0].Title != "Brow Gel" {
		t.Errorf("tenant a got %+v", resp.Results)
	}
}

func TestSearch_QueryEmbeddingCached(t *testing.T) {
	f := newSearchFixture(t)
	f.ingest(t, indexer.Document{ExternalID: "gel", Title: "Brow Gel", Body: "Brow gel for all day hold."})
	base := f.embedder.Calls()

	first, err := f.svc.Search(context.Background(), service.SearchRequest{TenantID: testTenant, Query: "Brow gel", Debug: true})
	if err != nil {
		t.Fatal(err)
	}
	second, err := f.svc.Search(context.Background(), service.SearchRequest{TenantID: testTenant, Query: "  brow   GEL ", Debug: true})
	if err != nil {
		t.Fatal(err)
	}
	if got := f.embedder.Calls() - base; got != 1 {
		t.Errorf("embed calls = %d, want 1", got)
	}
	if first.Debug.CacheHit || !second.Debug.CacheHit {
		t.Errorf("CacheHit = %v then %v, want false then true", first.Debug.CacheHit, second.Debug.CacheHit)
	}
	if first.Results[0].Score != second.Results[0].Score {
		t.Errorf("cached search scored differently: %v vs %v", first.Results[0].Score, second.Results[0].Score)
	}
}

type failingLexical struct{ err error }

func (l failingLexical) Search(context.Context, string, string, retrieval.Filters, int) ([]retrieval.Hit, error) {
	return nil, l.err
}

type emptyVector struct{}

func (emptyVector) Nearest(context.Context, string, []float32, retrieval.Filters, int) ([]retrieval.Hit, error) {
	return nil, nil
}

type blockingLexical struct{ release chan struct{} }

func (l blockingLexical) Search(ctx context.Context, _, _ string, _ retrieval.Filters, _ int) ([]retrieval.Hit, error) {
	<-l.release
	return nil, ctx.Err()
}

func TestSearch_Degradation(t *testing.T) {
	boom := errors.New("index offline")

	t.Run("lexical down", func(t *testing.T) {
		f := newSearchFixture(t)
		f.ingest(t, indexer.Document{ExternalID: "gel", Title: "Brow Gel", Body: "Brow gel for all day hold."})
		f.lexical = failingLexical{err: boom}
		f.rebuild(service.SearchConfig{})

		resp, err := f.svc.Search(context.Background(), service.SearchRequest{TenantID: testTenant, Query: "brow gel", Debug: true})
		if err != nil {
			t.Fatalf("Search() error = %v", err)
		}
		if len(resp.Results) != 1 || resp.Results[0].Lexical != nil || resp.Results[0].Semantic == nil {
			t.Fatalf("Results = %+v, want vector-only hit", resp.Results)
		}
		if len(resp.Debug.Degraded) != 1 || resp.Debug.Degraded[0] != "lexical" {
			t.Errorf("Degraded = %v", resp.Debug.Degraded)
		}
	})

	t.Run("embedder down", func(t *testing.T) {
		f := newSearchFixture(t)
		f.ingest(t, indexer.Document{ExternalID: "gel", Title: "Brow Gel", Body: "Brow gel for all day hold."})
		f.embedder.Err = boom

		resp, err := f.svc.Search(context.Background(), service.SearchRequest{TenantID: testTenant, Query: "brow gel", Debug: true})
		if err != nil {
			t.Fatalf("Search() error = %v", err)
		}
		if len(resp.Results) != 1 || resp.Results[0].Semantic != nil || resp.Results[0].Lexical == nil {
			t.Fatalf("Results = %+v, want lexical-only hit", resp.Results)
		}
		if len(resp.Debug.Degraded) != 1 || resp.Debug.Degraded[0] != "vector" {
			t.Errorf("Degraded = %v", resp.Debug.Degraded)
		}
	})

	t.Run("both down", func(t *testing.T) {
		f := newSearchFixture(t)
		f.embedder.Err = boom
		f.lexical = failingLexical{err: boom}
		f.rebuild(service.SearchConfig{})

		_, err := f.svc.Search(context.Background(), service.SearchRequest{TenantID: testTenant, Query: "brow gel"})
		if !errors.Is(err, service.ErrUpstreamUnavailable) {
			t.Fatalf("error = %v, want ErrUpstreamUnavailable", err)
		}
		if !service.IsRetryable(err) {
			t.Error("retrieval failure should be retryable")
		}
	})
}

func TestSearch_CallerCancellation(t *testing.T) {
	f := newSearchFixture(t)
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	f.lexical = blockingLexical{release: release}
	f.rebuild(service.SearchConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := f.svc.Search(ctx, service.SearchRequest{TenantID: testTenant, Query: "brow gel"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}

func TestSearch_Validation(t *testing.T) {
	f := newSearchFixture(t)

	tests := []struct {
		name string
		req  service.SearchRequest
	}{
		{name: "empty query", req: service.SearchRequest{TenantID: testTenant, Query: "   "}},
		{name: "missing tenant", req: service.SearchRequest{Query: "gel"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Search(context.Background(), tt.req)
			if !errors.Is(err, service.ErrInvalidInput) {
				t.Errorf("error = %v, want ErrInvalidInput", err)
			}
		})
	}
}
