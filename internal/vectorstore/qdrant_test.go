package vectorstore

import (
	"context"
	"fmt"
	"testing"

	"github.com/qdrant/go-client/qdrant"
)

func TestGRPCAddress(t *testing.T) {
	tests := []struct {
		rest     string
		wantAddr string
		wantErr  bool
	}{
		{rest: "http://localhost:6333", wantAddr: "localhost:6334"},
		{rest: "https://qdrant.internal:9000", wantAddr: "qdrant.internal:9001"},
		{rest: "http://qdrant", wantAddr: "qdrant:6334"},
		{rest: "http://:6333", wantAddr: "localhost:6334"},
		{rest: "://missing-scheme", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.rest, func(t *testing.T) {
			host, port, err := grpcAddress(tt.rest)
			if (err != nil) != tt.wantErr {
				t.Fatalf("grpcAddress() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if got := fmt.Sprintf("%s:%d", host, port); got != tt.wantAddr {
				t.Errorf("grpcAddress() = %s, want %s", got, tt.wantAddr)
			}
		})
	}
}

func TestNewQdrantStore_InvalidURL(t *testing.T) {
	if _, err := NewQdrantStore("://invalid"); err == nil {
		t.Error("NewQdrantStore() with invalid URL should return error")
	}
}

func TestQdrantStore_EarlyReturns(t *testing.T) {
	// No client: these paths must return before touching it.
	store := &QdrantStore{}
	ctx := context.Background()

	if err := store.Upsert(ctx, "c", []Point{}); err != nil {
		t.Errorf("Upsert() with empty points error = %v", err)
	}
	if err := store.Delete(ctx, "c", nil); err != nil {
		t.Errorf("Delete() with no ids error = %v", err)
	}
	if _, err := store.Search(ctx, "c", []float32{1, 2}, 0, nil); err == nil {
		t.Error("Search() with k=0 should return error")
	}
}

func TestBuildFilter(t *testing.T) {
	if f := buildFilter(nil); f != nil {
		t.Errorf("buildFilter(nil) = %v, want nil", f)
	}
	if f := buildFilter(map[string]string{MetaCategory: ""}); f != nil {
		t.Errorf("empty values should be ignored, got %v", f)
	}

	f := buildFilter(map[string]string{MetaTenantID: "t1", MetaCategory: "brows"})
	if f == nil || len(f.Must) != 2 {
		t.Fatalf("buildFilter() = %v, want two conditions", f)
	}
	// keys are sorted: category before tenant_id
	if got := f.Must[0].GetField().GetKey(); got != MetaCategory {
		t.Errorf("first condition key = %s, want %s", got, MetaCategory)
	}
	if got := f.Must[1].GetField().GetMatch().GetKeyword(); got != "t1" {
		t.Errorf("tenant match = %s, want t1", got)
	}
}

func TestPayloadValues(t *testing.T) {
	if meta := payloadValues(nil); meta == nil || len(meta) != 0 {
		t.Errorf("payloadValues(nil) = %v, want empty map", meta)
	}

	payload := qdrant.NewValueMap(map[string]any{
		MetaDocumentID: "doc-1",
		MetaOrdinal:    3,
		"nested":       map[string]any{"a": 1},
	})
	meta := payloadValues(payload)
	if meta[MetaDocumentID] != "doc-1" {
		t.Errorf("document_id = %v", meta[MetaDocumentID])
	}
	if meta[MetaOrdinal] != int64(3) {
		t.Errorf("ordinal = %#v, want int64(3)", meta[MetaOrdinal])
	}
	if _, ok := meta["nested"]; ok {
		t.Error("nested payload values should be skipped")
	}
}

func TestCollectionVectorSize(t *testing.T) {
	if got := collectionVectorSize(&qdrant.CollectionInfo{}); got != 0 {
		t.Errorf("collectionVectorSize(empty) = %d, want 0", got)
	}
	info := &qdrant.CollectionInfo{
		Config: &qdrant.CollectionConfig{
			Params: &qdrant.CollectionParams{
				VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{Size: 768, Distance: qdrant.Distance_Cosine}),
			},
		},
	}
	if got := collectionVectorSize(info); got != 768 {
		t.Errorf("collectionVectorSize() = %d, want 768", got)
	}
}
