package indexer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/mock/gomock"

	"github.com/em-ech/siftopsv1-sub000/internal/service"
	"github.com/em-ech/siftopsv1-sub000/internal/storage"
	storage_mocks "github.com/em-ech/siftopsv1-sub000/internal/storage/mocks"
	"github.com/em-ech/siftopsv1-sub000/internal/testutil"
	"github.com/em-ech/siftopsv1-sub000/internal/vectorstore"
)

const testCollection = "chunks"

type pipelineFixture struct {
	pipeline  *Pipeline
	docRepo   *storage.DocumentRepo
	chunkRepo *storage.ChunkRepo
	vectors   *vectorstore.MemoryStore
	embedder  *testutil.HashEmbedder
}

func newPipelineFixture(t *testing.T, size, overlap int) *pipelineFixture {
	t.Helper()
	db := testutil.NewDB(t)
	chunker, err := NewChunker(size, overlap)
	if err != nil {
		t.Fatal(err)
	}
	f := &pipelineFixture{
		docRepo:   storage.NewDocumentRepo(db),
		chunkRepo: storage.NewChunkRepo(db),
		vectors:   vectorstore.NewMemoryStore(),
		embedder:  testutil.NewHashEmbedder(32),
	}
	f.pipeline = NewPipeline(f.docRepo, f.chunkRepo, f.embedder, f.vectors, testCollection, chunker)
	return f
}

func TestNewPipeline(t *testing.T) {
	f := newPipelineFixture(t, 100, 10)
	if f.pipeline.chunker == nil || f.pipeline.markup == nil {
		t.Error("NewPipeline() should set chunker and markup")
	}
	if f.pipeline.collection != testCollection {
		t.Errorf("collection = %v, want %v", f.pipeline.collection, testCollection)
	}
}

func TestPipeline_Ingest(t *testing.T) {
	f := newPipelineFixture(t, 60, 10)
	ctx := context.Background()

	body := strings.Repeat("Brow gel keeps hairs in place all day. ", 6)
	res, err := f.pipeline.Ingest(ctx, Document{
		TenantID:   "t1",
		ExternalID: "gel",
		SourceID:   "shopify",
		Title:      "Brow Gel",
		Category:   "brows",
		Body:       body,
	})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if res.Skipped || res.Chunks < 2 {
		t.Fatalf("Ingest() = %+v, want several fresh chunks", res)
	}

	stored, err := f.chunkRepo.ListByDocument(ctx, "t1", "gel")
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != res.Chunks {
		t.Errorf("stored %d chunks, result says %d", len(stored), res.Chunks)
	}
	if f.vectors.Len(testCollection) != res.Chunks {
		t.Errorf("vector count = %d, want %d", f.vectors.Len(testCollection), res.Chunks)
	}

	doc, err := f.docRepo.Get(ctx, "t1", "gel")
	if err != nil {
		t.Fatal(err)
	}
	if doc.Title != "Brow Gel" || doc.Text != NormalizeWhitespace(body) {
		t.Errorf("stored document = %+v", doc)
	}

	hits, err := f.vectors.Search(ctx, testCollection, f.embedder.Vector("brow gel"), 1, map[string]string{
		vectorstore.MetaTenantID: "t1",
		vectorstore.MetaCategory: "brows",
	})
	if err != nil || len(hits) != 1 {
		t.Fatalf("Search() = %v, %v", hits, err)
	}
	if hits[0].Payload[vectorstore.MetaDocumentID] != "gel" {
		t.Errorf("payload = %v", hits[0].Payload)
	}
}

func TestPipeline_IngestSkipsUnchanged(t *testing.T) {
	f := newPipelineFixture(t, 100, 10)
	ctx := context.Background()

	available := true
	doc := Document{TenantID: "t1", ExternalID: "a", Title: "A", Body: "same text"}
	if _, err := f.pipeline.Ingest(ctx, doc); err != nil {
		t.Fatal(err)
	}
	calls := f.embedder.Calls()

	doc.Available = &available
	res, err := f.pipeline.Ingest(ctx, doc)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Skipped || res.Chunks != 1 {
		t.Errorf("Ingest() = %+v, want skipped with 1 chunk", res)
	}
	if f.embedder.Calls() != calls {
		t.Error("unchanged document was re-embedded")
	}
	stored, _ := f.docRepo.Get(ctx, "t1", "a")
	if stored.Available == nil || !*stored.Available {
		t.Error("metadata was not refreshed")
	}
}

func TestPipeline_AlwaysEmbedRestoresLostVectors(t *testing.T) {
	f := newPipelineFixture(t, 100, 10)
	ctx := context.Background()
	doc := Document{TenantID: "t1", ExternalID: "a", Title: "A", Body: "same text"}
	if _, err := f.pipeline.Ingest(ctx, doc); err != nil {
		t.Fatal(err)
	}

	// A fresh in-memory store over the same database, as after a restart.
	vectors := vectorstore.NewMemoryStore()
	if err := vectors.EnsureCollection(ctx, testCollection, 32); err != nil {
		t.Fatal(err)
	}
	chunker, err := NewChunker(100, 10)
	if err != nil {
		t.Fatal(err)
	}
	p := NewPipeline(f.docRepo, f.chunkRepo, f.embedder, vectors, testCollection, chunker)
	p.SetAlwaysEmbed(true)
	calls := f.embedder.Calls()

	res, err := p.Ingest(ctx, doc)
	if err != nil {
		t.Fatal(err)
	}
	if res.Skipped {
		t.Error("unchanged document was skipped with always-embed set")
	}
	if f.embedder.Calls() == calls {
		t.Error("unchanged document was not re-embedded")
	}
	if got := vectors.Len(testCollection); got != res.Chunks {
		t.Errorf("vectors = %d, want %d", got, res.Chunks)
	}
}

func TestPipeline_ReingestReplacesVersion(t *testing.T) {
	f := newPipelineFixture(t, 100, 10)
	ctx := context.Background()

	if _, err := f.pipeline.Ingest(ctx, Document{TenantID: "t1", ExternalID: "a", Body: "old wording about mascara"}); err != nil {
		t.Fatal(err)
	}
	before, _ := f.chunkRepo.ListByDocument(ctx, "t1", "a")

	if _, err := f.pipeline.Ingest(ctx, Document{TenantID: "t1", ExternalID: "a", Body: "new wording about lipstick"}); err != nil {
		t.Fatal(err)
	}
	after, _ := f.chunkRepo.ListByDocument(ctx, "t1", "a")

	if len(after) != 1 || after[0].ID == before[0].ID || !strings.Contains(after[0].Text, "lipstick") {
		t.Errorf("chunks after re-ingest = %+v", after)
	}
	if f.vectors.Len(testCollection) != 1 {
		t.Errorf("old vectors not deleted, have %d", f.vectors.Len(testCollection))
	}
}

func TestPipeline_IngestMarkdownTitle(t *testing.T) {
	f := newPipelineFixture(t, 100, 10)
	ctx := context.Background()

	if _, err := f.pipeline.Ingest(ctx, Document{TenantID: "t1", ExternalID: "md", Format: FormatMarkdown, Body: "# Setting Spray\n\nLocks makeup."}); err != nil {
		t.Fatal(err)
	}
	doc, _ := f.docRepo.Get(ctx, "t1", "md")
	if doc.Title != "Setting Spray" {
		t.Errorf("Title = %q, want heading", doc.Title)
	}
}

func TestPipeline_IngestEmptyBody(t *testing.T) {
	f := newPipelineFixture(t, 100, 10)
	ctx := context.Background()

	res, err := f.pipeline.Ingest(ctx, Document{TenantID: "t1", ExternalID: "empty", Body: "   "})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if res.Chunks != 0 || f.embedder.Calls() != 0 {
		t.Errorf("empty body: %+v, embed calls %d", res, f.embedder.Calls())
	}
	counts, _ := f.docRepo.Counts(ctx, "t1")
	if counts.DocumentsNoChunks != 1 {
		t.Errorf("DocumentsNoChunks = %d, want 1", counts.DocumentsNoChunks)
	}
}

func TestPipeline_IngestValidation(t *testing.T) {
	f := newPipelineFixture(t, 100, 10)
	tests := []struct {
		name  string
		doc   Document
		field string
	}{
		{"missing tenant", Document{ExternalID: "a"}, "tenant_id"},
		{"missing id", Document{TenantID: "t1"}, "external_id"},
		{"slash in id", Document{TenantID: "t1", ExternalID: "a/b"}, "external_id"},
		{"bad format", Document{TenantID: "t1", ExternalID: "a", Format: "pdf"}, "text"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.pipeline.Ingest(context.Background(), tt.doc)
			var ve *service.ValidationError
			if !errors.As(err, &ve) || ve.Field != tt.field {
				t.Errorf("Ingest() error = %v, want ValidationError on %s", err, tt.field)
			}
		})
	}
}

func TestPipeline_IngestEmbeddingFailure(t *testing.T) {
	f := newPipelineFixture(t, 100, 10)
	f.embedder.Err = errors.New("connection refused")

	_, err := f.pipeline.Ingest(context.Background(), Document{TenantID: "t1", ExternalID: "a", Body: "text"})
	if !errors.Is(err, service.ErrUpstreamUnavailable) {
		t.Errorf("error = %v, want ErrUpstreamUnavailable", err)
	}
	if _, err := f.docRepo.Get(context.Background(), "t1", "a"); !errors.Is(err, storage.ErrNotFound) {
		t.Error("document must not be stored when embedding fails")
	}
}

func TestPipeline_IngestRollsBackVectors(t *testing.T) {
	ctrl := gomock.NewController(t)
	docRepo := storage_mocks.NewMockDocumentStore(ctrl)
	chunkRepo := storage_mocks.NewMockChunkStore(ctrl)
	vectors := vectorstore.NewMemoryStore()
	chunker, _ := NewChunker(100, 10)
	p := NewPipeline(docRepo, chunkRepo, testutil.NewHashEmbedder(8), vectors, testCollection, chunker)

	docRepo.EXPECT().Get(gomock.Any(), "t1", "a").Return(nil, storage.ErrNotFound)
	chunkRepo.EXPECT().ReplaceForDocument(gomock.Any(), gomock.Any(), gomock.Len(1)).Return(nil, errors.New("disk full"))

	if _, err := p.Ingest(context.Background(), Document{TenantID: "t1", ExternalID: "a", Body: "text"}); err == nil {
		t.Fatal("Ingest() should fail when the chunk swap fails")
	}
	if vectors.Len(testCollection) != 0 {
		t.Errorf("new vectors left behind: %d", vectors.Len(testCollection))
	}
}

func TestPipeline_IngestAll(t *testing.T) {
	f := newPipelineFixture(t, 100, 10)
	docs := []Document{
		{TenantID: "t1", ExternalID: "a", Body: "alpha"},
		{TenantID: "t1", ExternalID: "", Body: "invalid"},
		{TenantID: "t1", ExternalID: "b", Body: "beta"},
	}

	results, err := f.pipeline.IngestAll(context.Background(), docs)
	if err == nil {
		t.Error("IngestAll() should report the invalid document")
	}
	if len(results) != 2 {
		t.Errorf("IngestAll() ingested %d, want 2", len(results))
	}
}

func TestPipeline_Delete(t *testing.T) {
	f := newPipelineFixture(t, 100, 10)
	ctx := context.Background()

	if _, err := f.pipeline.Ingest(ctx, Document{TenantID: "t1", ExternalID: "a", Body: "alpha"}); err != nil {
		t.Fatal(err)
	}
	if err := f.pipeline.Delete(ctx, "t1", "a"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if f.vectors.Len(testCollection) != 0 {
		t.Error("vectors not deleted")
	}
	if err := f.pipeline.Delete(ctx, "t1", "a"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("second Delete() error = %v, want ErrNotFound", err)
	}
}

func TestMustBeContiguous(t *testing.T) {
	mustBeContiguous([]Chunk{{Ordinal: 0}, {Ordinal: 1}})

	defer func() {
		if recover() == nil {
			t.Error("mustBeContiguous() should panic on a gap")
		}
	}()
	mustBeContiguous([]Chunk{{Ordinal: 0}, {Ordinal: 2}})
}

func TestContentHash(t *testing.T) {
	base := contentHash("t", "c", "x")
	if base != contentHash("t", "c", "x") {
		t.Error("hash is not deterministic")
	}
	if base == contentHash("t", "other", "x") {
		t.Error("category must change the hash")
	}
	if contentHash("ab", "", "c") == contentHash("a", "b", "c") {
		t.Error("field boundaries must change the hash")
	}
}
