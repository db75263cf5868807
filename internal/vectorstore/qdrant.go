package vectorstore

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"

	"github.com/qdrant/go-client/qdrant"

	"github.com/em-ech/siftopsv1-sub000/internal/contextutil"
)

// writeBatchSize caps the points sent in one upsert or delete request.
const writeBatchSize = 256

// indexedFields get keyword payload indexes so tenant and category filters stay cheap.
var indexedFields = []string{MetaTenantID, MetaDocumentID, MetaCategory}

// QdrantStore implements VectorStore using Qdrant over gRPC.
type QdrantStore struct {
	client *qdrant.Client
}

// NewQdrantStore creates a Qdrant-backed store from its REST URL
// (e.g. "http://localhost:6333"). The gRPC port is the REST port + 1.
func NewQdrantStore(urlStr string) (*QdrantStore, error) {
	host, port, err := grpcAddress(urlStr)
	if err != nil {
		return nil, err
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Qdrant client: %w", err)
	}
	return &QdrantStore{client: client}, nil
}

// grpcAddress derives the gRPC host and port from the REST URL.
func grpcAddress(urlStr string) (string, int, error) {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid Qdrant URL: %w", err)
	}

	host := parsedURL.Hostname()
	if host == "" {
		host = "localhost"
	}

	port := 6334
	if p := parsedURL.Port(); p != "" {
		if restPort, err := strconv.Atoi(p); err == nil {
			port = restPort + 1
		}
	}
	return host, port, nil
}

// Upsert writes points in batches and waits until they are searchable, so
// an ingest that deletes the previous version afterwards never leaves a gap.
func (s *QdrantStore) Upsert(ctx context.Context, collection string, points []Point) error {
	logger := contextutil.LoggerFromContext(ctx)

	for start := 0; start < len(points); start += writeBatchSize {
		batch := points[start:min(start+writeBatchSize, len(points))]
		structs := make([]*qdrant.PointStruct, len(batch))
		for i, p := range batch {
			structs[i] = &qdrant.PointStruct{
				Id:      qdrant.NewID(p.ID),
				Vectors: qdrant.NewVectors(p.Vec...),
				Payload: qdrant.NewValueMap(p.Payload),
			}
		}

		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: collection,
			Points:         structs,
			Wait:           qdrant.PtrOf(true),
		})
		if err != nil {
			return fmt.Errorf("failed to upsert %d points into %s: %w", len(batch), collection, err)
		}
	}

	if len(points) > 0 {
		logger.DebugContext(ctx, "upserted points", "collection", collection, "count", len(points))
	}
	return nil
}

// Search performs a cosine similarity search with exact-match payload filters.
func (s *QdrantStore) Search(ctx context.Context, collection string, query []float32, k int, filters map[string]string) ([]Hit, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be greater than 0")
	}

	scored, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(query...),
		Filter:         buildFilter(filters),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search %s: %w", collection, err)
	}

	results := make([]Hit, 0, len(scored))
	for _, p := range scored {
		results = append(results, Hit{
			PointID: p.GetId().GetUuid(),
			Score:   p.GetScore(),
			Payload: payloadValues(p.GetPayload()),
		})
	}

	contextutil.LoggerFromContext(ctx).DebugContext(ctx, "vector search completed",
		"collection", collection,
		"k", k,
		"results", len(results),
	)
	return results, nil
}

// Delete removes points by id in batches.
func (s *QdrantStore) Delete(ctx context.Context, collection string, ids []string) error {
	for start := 0; start < len(ids); start += writeBatchSize {
		batch := ids[start:min(start+writeBatchSize, len(ids))]
		pointIDs := make([]*qdrant.PointId, len(batch))
		for i, id := range batch {
			pointIDs[i] = qdrant.NewID(id)
		}

		_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: collection,
			Points:         qdrant.NewPointsSelector(pointIDs...),
			Wait:           qdrant.PtrOf(true),
		})
		if err != nil {
			return fmt.Errorf("failed to delete %d points from %s: %w", len(batch), collection, err)
		}
	}

	if len(ids) > 0 {
		contextutil.LoggerFromContext(ctx).DebugContext(ctx, "deleted points", "collection", collection, "count", len(ids))
	}
	return nil
}

// CollectionExists checks if a collection exists.
func (s *QdrantStore) CollectionExists(ctx context.Context, collection string) (bool, error) {
	exists, err := s.client.CollectionExists(ctx, collection)
	if err != nil {
		return false, fmt.Errorf("failed to check collection existence: %w", err)
	}
	return exists, nil
}

// EnsureCollection creates the collection with cosine distance and keyword
// payload indexes, or checks that an existing one has vectorSize dimensions.
func (s *QdrantStore) EnsureCollection(ctx context.Context, collection string, vectorSize int) error {
	logger := contextutil.LoggerFromContext(ctx)

	exists, err := s.CollectionExists(ctx, collection)
	if err != nil {
		return err
	}

	if exists {
		info, err := s.client.GetCollectionInfo(ctx, collection)
		if err != nil {
			return fmt.Errorf("failed to get collection info: %w", err)
		}
		size := collectionVectorSize(info)
		if size == 0 {
			return fmt.Errorf("could not determine vector size of collection %s", collection)
		}
		if size != vectorSize {
			return fmt.Errorf("collection %s has vector size %d, configured %d; recreate it after changing the embedding model", collection, size, vectorSize)
		}
		logger.InfoContext(ctx, "collection validated", "collection", collection, "vector_size", vectorSize)
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(vectorSize),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	for _, field := range indexedFields {
		_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: collection,
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
			Wait:           qdrant.PtrOf(true),
		})
		if err != nil {
			return fmt.Errorf("failed to index payload field %s: %w", field, err)
		}
	}
	logger.InfoContext(ctx, "collection created", "collection", collection, "vector_size", vectorSize, "indexed_fields", indexedFields)
	return nil
}

func collectionVectorSize(info *qdrant.CollectionInfo) int {
	params := info.GetConfig().GetParams().GetVectorsConfig().GetParams()
	return int(params.GetSize())
}

// buildFilter turns exact-match filters into a Qdrant filter. Empty values are ignored.
func buildFilter(filters map[string]string) *qdrant.Filter {
	keys := make([]string, 0, len(filters))
	for key, value := range filters {
		if value != "" {
			keys = append(keys, key)
		}
	}
	if len(keys) == 0 {
		return nil
	}
	sort.Strings(keys)

	must := make([]*qdrant.Condition, 0, len(keys))
	for _, key := range keys {
		must = append(must, qdrant.NewMatch(key, filters[key]))
	}
	return &qdrant.Filter{Must: must}
}

// payloadValues flattens a point payload. Nested lists and structs are not
// written by the indexer and are skipped.
func payloadValues(payload map[string]*qdrant.Value) map[string]any {
	meta := make(map[string]any, len(payload))
	for key, v := range payload {
		switch kind := v.GetKind().(type) {
		case *qdrant.Value_StringValue:
			meta[key] = kind.StringValue
		case *qdrant.Value_IntegerValue:
			meta[key] = kind.IntegerValue
		case *qdrant.Value_DoubleValue:
			meta[key] = kind.DoubleValue
		case *qdrant.Value_BoolValue:
			meta[key] = kind.BoolValue
		}
	}
	return meta
}
