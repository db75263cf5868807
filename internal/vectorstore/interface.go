// Package vectorstore persists chunk embeddings and answers nearest-neighbour queries.
package vectorstore

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_vector_store.go -package=mocks github.com/em-ech/siftopsv1-sub000/internal/vectorstore VectorStore

import "context"

// Payload keys written with every chunk point. Any of them may be used as
// an exact-match search filter.
const (
	MetaTenantID   = "tenant_id"
	MetaDocumentID = "document_id"
	MetaCategory   = "category"
	MetaOrdinal    = "ordinal"
	MetaSourceID   = "source_id"
)

// Point is one embedded chunk.
type Point struct {
	ID      string
	Vec     []float32
	Payload map[string]any
}

// Hit is a point returned by Search with its cosine similarity.
type Hit struct {
	PointID string
	Score   float32
	Payload map[string]any
}

// DocumentID returns the owning document of the hit, if the payload has one.
func (h Hit) DocumentID() (string, bool) {
	id, ok := h.Payload[MetaDocumentID].(string)
	return id, ok && id != ""
}

// VectorStore is the vector index behind semantic retrieval.
type VectorStore interface {
	Upsert(ctx context.Context, collection string, points []Point) error

	// Search returns at most k hits by descending similarity among points
	// whose payload matches every non-empty filter value.
	Search(ctx context.Context, collection string, query []float32, k int, filters map[string]string) ([]Hit, error)

	Delete(ctx context.Context, collection string, ids []string) error

	CollectionExists(ctx context.Context, collection string) (bool, error)
}
