package indexer

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/em-ech/siftopsv1-sub000/internal/contextutil"
	"github.com/em-ech/siftopsv1-sub000/internal/service"
	"github.com/em-ech/siftopsv1-sub000/internal/storage"
	"github.com/em-ech/siftopsv1-sub000/internal/vectorstore"
)

// embedBatchSize bounds how many chunk texts go into one embeddings request.
const embedBatchSize = 32

// Embedder produces one embedding per input text.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Pipeline turns connector documents into stored chunks and vectors.
type Pipeline struct {
	docRepo     storage.DocumentStore
	chunkRepo   storage.ChunkStore
	embedder    Embedder
	vectorStore vectorstore.VectorStore
	collection  string
	chunker     *Chunker
	markup      *Markup
	// alwaysEmbed bypasses the unchanged-content skip.
	alwaysEmbed bool
}

// NewPipeline creates a new indexing pipeline.
func NewPipeline(
	docRepo storage.DocumentStore,
	chunkRepo storage.ChunkStore,
	embedder Embedder,
	vectorStore vectorstore.VectorStore,
	collection string,
	chunker *Chunker,
) *Pipeline {
	return &Pipeline{
		docRepo:     docRepo,
		chunkRepo:   chunkRepo,
		embedder:    embedder,
		vectorStore: vectorStore,
		collection:  collection,
		chunker:     chunker,
		markup:      NewMarkup(),
	}
}

// SetAlwaysEmbed makes Ingest re-chunk and re-embed documents whose content
// hash is unchanged. Needed when the vector store does not outlive the process
// while the document rows do.
func (p *Pipeline) SetAlwaysEmbed(on bool) {
	p.alwaysEmbed = on
}

// Ingest indexes a single document.
// A document whose content hash matches the stored one is not re-chunked; only
// its metadata is refreshed. Otherwise new vectors are written first, then
// the document row and its chunks are swapped in one transaction, then the
// previous version's vectors are deleted.
func (p *Pipeline) Ingest(ctx context.Context, doc Document) (*IngestResult, error) {
	ctx = contextutil.WithAttrs(ctx, "external_id", doc.ExternalID)
	logger := contextutil.LoggerFromContext(ctx)

	if err := validateDocument(doc); err != nil {
		return nil, err
	}

	extracted, err := p.markup.Extract(doc.Body, doc.Format)
	if err != nil {
		return nil, &service.ValidationError{Field: "text", Message: err.Error()}
	}
	text := NormalizeWhitespace(extracted.Text)

	title := strings.TrimSpace(doc.Title)
	if title == "" {
		title = extracted.Title
	}
	if title == "" {
		title = doc.ExternalID
	}

	record := &storage.DocumentRecord{
		TenantID:    doc.TenantID,
		ExternalID:  doc.ExternalID,
		SourceID:    doc.SourceID,
		Title:       title,
		URL:         doc.URL,
		Category:    doc.Category,
		Text:        text,
		Available:   doc.Available,
		PublishedAt: doc.PublishedAt,
		Hash:        contentHash(title, doc.Category, text),
	}

	existing, err := p.docRepo.Get(ctx, doc.TenantID, doc.ExternalID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("failed to check existing document: %w", err)
	}
	if existing != nil && existing.Hash == record.Hash && !p.alwaysEmbed {
		if err := p.docRepo.UpdateMetadata(ctx, record); err != nil {
			return nil, fmt.Errorf("failed to update document metadata: %w", err)
		}
		logger.DebugContext(ctx, "skipping unchanged document", "external_id", doc.ExternalID, "hash", record.Hash)
		chunks, err := p.chunkRepo.ListByDocument(ctx, doc.TenantID, doc.ExternalID)
		if err != nil {
			return nil, fmt.Errorf("failed to count chunks: %w", err)
		}
		return &IngestResult{ExternalID: doc.ExternalID, Chunks: len(chunks), Skipped: true}, nil
	}

	chunks := p.chunker.Chunk(text)
	mustBeContiguous(chunks)

	chunkRecords := make([]*storage.ChunkRecord, len(chunks))
	points := make([]vectorstore.Point, len(chunks))
	embedInputs := make([]string, len(chunks))
	for i, chunk := range chunks {
		chunkID := uuid.New().String()
		chunkRecords[i] = &storage.ChunkRecord{
			ID:         chunkID,
			TenantID:   doc.TenantID,
			DocumentID: doc.ExternalID,
			Ordinal:    chunk.Ordinal,
			Text:       chunk.Text,
		}
		points[i] = vectorstore.Point{
			ID: chunkID,
			Payload: map[string]any{
				vectorstore.MetaTenantID:   doc.TenantID,
				vectorstore.MetaDocumentID: doc.ExternalID,
				vectorstore.MetaCategory:   doc.Category,
				vectorstore.MetaOrdinal:    chunk.Ordinal,
				vectorstore.MetaSourceID:   doc.SourceID,
			},
		}
		embedInputs[i] = title + "\n\n" + chunk.Text
	}

	if len(chunks) > 0 {
		vectors, err := p.embed(ctx, embedInputs)
		if err != nil {
			return nil, err
		}
		for i := range points {
			points[i].Vec = vectors[i]
		}
		if err := p.vectorStore.Upsert(ctx, p.collection, points); err != nil {
			return nil, service.Upstream("upsert vectors", err)
		}
	}

	oldIDs, err := p.chunkRepo.ReplaceForDocument(ctx, record, chunkRecords)
	if err != nil {
		if len(points) > 0 {
			newIDs := make([]string, len(points))
			for i, pt := range points {
				newIDs[i] = pt.ID
			}
			if delErr := p.vectorStore.Delete(ctx, p.collection, newIDs); delErr != nil {
				logger.WarnContext(ctx, "failed to remove vectors of aborted ingest", "error", delErr, "count", len(newIDs))
			}
		}
		return nil, fmt.Errorf("failed to store chunks: %w", err)
	}

	if len(oldIDs) > 0 {
		// Stale points are filtered at query time, so a failure here only leaks space.
		if err := p.vectorStore.Delete(ctx, p.collection, oldIDs); err != nil {
			logger.WarnContext(ctx, "failed to delete previous vectors", "error", err, "count", len(oldIDs))
		}
	}

	logger.InfoContext(ctx, "indexed document",
		"tenant_id", doc.TenantID,
		"external_id", doc.ExternalID,
		"chunks", len(chunks),
		"replaced", len(oldIDs),
	)
	return &IngestResult{ExternalID: doc.ExternalID, Chunks: len(chunks)}, nil
}

// IngestAll ingests docs in order. Per-document failures are logged and
// collected; the batch continues.
func (p *Pipeline) IngestAll(ctx context.Context, docs []Document) ([]*IngestResult, error) {
	logger := contextutil.LoggerFromContext(ctx)

	results := make([]*IngestResult, 0, len(docs))
	var errs []error
	for _, doc := range docs {
		select {
		case <-ctx.Done():
			return results, ctx.Err()
		default:
		}

		res, err := p.Ingest(ctx, doc)
		if err != nil {
			logger.ErrorContext(ctx, "failed to ingest document", "external_id", doc.ExternalID, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", doc.ExternalID, err))
			continue
		}
		results = append(results, res)
	}

	logger.InfoContext(ctx, "ingest batch completed", "total", len(docs), "success", len(results), "errors", len(errs))
	return results, errors.Join(errs...)
}

// Delete removes a document, its chunks, and its vectors.
func (p *Pipeline) Delete(ctx context.Context, tenantID, externalID string) error {
	logger := contextutil.LoggerFromContext(ctx)

	ids, err := p.chunkRepo.DeleteDocument(ctx, tenantID, externalID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return err
		}
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if len(ids) > 0 {
		if err := p.vectorStore.Delete(ctx, p.collection, ids); err != nil {
			logger.WarnContext(ctx, "failed to delete vectors", "error", err, "count", len(ids))
		}
	}
	logger.InfoContext(ctx, "deleted document", "tenant_id", tenantID, "external_id", externalID, "chunks", len(ids))
	return nil
}

func (p *Pipeline) embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += embedBatchSize {
		end := min(start+embedBatchSize, len(texts))
		batch, err := p.embedder.EmbedTexts(ctx, texts[start:end])
		if err != nil {
			return nil, service.Upstream("embed chunks", err)
		}
		if len(batch) != end-start {
			return nil, service.Upstream("embed chunks", fmt.Errorf("embedding count mismatch: expected %d, got %d", end-start, len(batch)))
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

func validateDocument(doc Document) error {
	if strings.TrimSpace(doc.TenantID) == "" {
		return &service.ValidationError{Field: "tenant_id", Message: "cannot be empty"}
	}
	if strings.TrimSpace(doc.ExternalID) == "" {
		return &service.ValidationError{Field: "external_id", Message: "cannot be empty"}
	}
	if strings.ContainsAny(doc.ExternalID, "/\x00") {
		return &service.ValidationError{Field: "external_id", Message: "cannot contain '/'"}
	}
	return nil
}

// contentHash covers every input that shapes chunks, embeddings, or vector payloads.
func contentHash(title, category, text string) string {
	h := sha256.New()
	for _, part := range []string{title, category, text} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

// mustBeContiguous panics if chunk ordinals are not 0..n-1 in order.
func mustBeContiguous(chunks []Chunk) {
	for i, ch := range chunks {
		if ch.Ordinal != i {
			panic(fmt.Sprintf("indexer: chunk ordinal %d at position %d", ch.Ordinal, i))
		}
	}
}
