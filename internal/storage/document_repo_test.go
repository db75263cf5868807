package storage

import (
	"context"
	"testing"
	"time"
)

func TestDocumentRepo_GetAndGetMany(t *testing.T) {
	db := newTestDB(t)
	chunks := NewChunkRepo(db)
	repo := NewDocumentRepo(db)
	ctx := context.Background()

	available := true
	published := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	doc := testDocument("t1", "doc-1", "brows", "Boy Brow is a brow gel, $18")
	doc.Available = &available
	doc.PublishedAt = &published
	if _, err := chunks.ReplaceForDocument(ctx, doc, nil); err != nil {
		t.Fatalf("ReplaceForDocument() error = %v", err)
	}
	if _, err := chunks.ReplaceForDocument(ctx, testDocument("t1", "doc-2", "", "second"), nil); err != nil {
		t.Fatalf("ReplaceForDocument() error = %v", err)
	}

	got, err := repo.Get(ctx, "t1", "doc-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.SourceID != "shopify" || got.Category != "brows" || got.Text != doc.Text {
		t.Errorf("Get() = %+v", got)
	}
	if got.Available == nil || !*got.Available {
		t.Errorf("Available = %v, want true", got.Available)
	}
	if got.PublishedAt == nil || !got.PublishedAt.Equal(published) {
		t.Errorf("PublishedAt = %v, want %v", got.PublishedAt, published)
	}

	if _, err := repo.Get(ctx, "t2", "doc-1"); err != ErrNotFound {
		t.Errorf("Get() other tenant error = %v, want ErrNotFound", err)
	}

	many, err := repo.GetMany(ctx, "t1", []string{"doc-1", "doc-2", "missing"})
	if err != nil {
		t.Fatalf("GetMany() error = %v", err)
	}
	if len(many) != 2 || many["doc-2"] == nil {
		t.Errorf("GetMany() = %v", many)
	}
	if many["doc-2"].Available != nil || many["doc-2"].PublishedAt != nil {
		t.Errorf("optional fields should be nil: %+v", many["doc-2"])
	}
}

func TestDocumentRepo_UpdateMetadata(t *testing.T) {
	db := newTestDB(t)
	repo := NewDocumentRepo(db)
	ctx := context.Background()

	doc := testDocument("t1", "doc-1", "brows", "text")
	if _, err := NewChunkRepo(db).ReplaceForDocument(ctx, doc, nil); err != nil {
		t.Fatalf("ReplaceForDocument() error = %v", err)
	}

	doc.Title = "Renamed"
	if err := repo.UpdateMetadata(ctx, doc); err != nil {
		t.Fatalf("UpdateMetadata() error = %v", err)
	}
	got, _ := repo.Get(ctx, "t1", "doc-1")
	if got.Title != "Renamed" {
		t.Errorf("Title = %q, want Renamed", got.Title)
	}

	if err := repo.UpdateMetadata(ctx, testDocument("t1", "nope", "", "x")); err != ErrNotFound {
		t.Errorf("UpdateMetadata(missing) error = %v, want ErrNotFound", err)
	}
}

func TestDocumentRepo_Counts(t *testing.T) {
	db := newTestDB(t)
	chunks := NewChunkRepo(db)
	ctx := context.Background()

	if _, err := chunks.ReplaceForDocument(ctx, testDocument("t1", "a", "", "a"), testChunks("a", "one", "two")); err != nil {
		t.Fatal(err)
	}
	if _, err := chunks.ReplaceForDocument(ctx, testDocument("t1", "b", "", "b"), nil); err != nil {
		t.Fatal(err)
	}

	c, err := NewDocumentRepo(db).Counts(ctx, "t1")
	if err != nil {
		t.Fatalf("Counts() error = %v", err)
	}
	if c.Documents != 2 || c.Chunks != 2 || c.DocumentsNoChunks != 1 {
		t.Errorf("Counts() = %+v", c)
	}
}
