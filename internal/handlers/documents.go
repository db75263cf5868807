package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/em-ech/siftopsv1-sub000/internal/contextutil"
	"github.com/em-ech/siftopsv1-sub000/internal/indexer"
	"github.com/em-ech/siftopsv1-sub000/internal/service"
)

const maxBatchDocuments = 500

// Ingester indexes and removes connector documents.
type Ingester interface {
	Ingest(ctx context.Context, doc indexer.Document) (*indexer.IngestResult, error)
	IngestAll(ctx context.Context, docs []indexer.Document) ([]*indexer.IngestResult, error)
	Delete(ctx context.Context, tenantID, externalID string) error
}

// DocumentHandler receives documents from connectors.
type DocumentHandler struct {
	ingester Ingester
}

// NewDocumentHandler creates a new DocumentHandler.
func NewDocumentHandler(ingester Ingester) *DocumentHandler {
	return &DocumentHandler{ingester: ingester}
}

// DocumentRequest is one connector-delivered document.
//
// swagger:model DocumentRequest
type DocumentRequest struct {
	ExternalID string `json:"external_id"`
	SourceID   string `json:"source_id"`
	Title      string `json:"title"`
	URL        string `json:"url,omitempty"`
	Text       string `json:"text"`
	// Format is text, markdown or html. Defaults to text.
	Format      string     `json:"format,omitempty"`
	Category    string     `json:"category,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	Available   *bool      `json:"available,omitempty"`
}

// ingestBody accepts either a single document or {"documents": [...]}.
type ingestBody struct {
	DocumentRequest
	Documents []DocumentRequest `json:"documents"`
}

// IngestResponse reports what happened to each delivered document.
//
// swagger:model IngestResponse
type IngestResponse struct {
	Results []*indexer.IngestResult `json:"results"`
	Errors  []string                `json:"errors,omitempty"`
}

func (h *DocumentHandler) toDocument(tenant string, req DocumentRequest) (indexer.Document, error) {
	format, err := indexer.ParseFormat(req.Format)
	if err != nil {
		return indexer.Document{}, &service.ValidationError{Field: "format", Message: err.Error()}
	}
	return indexer.Document{
		TenantID:    tenant,
		ExternalID:  req.ExternalID,
		SourceID:    req.SourceID,
		Title:       req.Title,
		URL:         req.URL,
		Category:    req.Category,
		Body:        req.Text,
		Format:      format,
		Available:   req.Available,
		PublishedAt: req.PublishedAt,
	}, nil
}

// Ingest handles POST /api/v1/documents.
func (h *DocumentHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)
	tenant := tenantID(r)

	var body ingestBody
	if err := decodeJSON(w, r, &body); err != nil {
		logger.WarnContext(ctx, "invalid request body", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if len(body.Documents) == 0 {
		doc, err := h.toDocument(tenant, body.DocumentRequest)
		if err != nil {
			writeServiceError(ctx, w, err, "Invalid document")
			return
		}
		res, err := h.ingester.Ingest(ctx, doc)
		if err != nil {
			writeServiceError(ctx, w, err, "Failed to ingest document")
			return
		}
		writeJSON(ctx, w, http.StatusOK, IngestResponse{Results: []*indexer.IngestResult{res}})
		return
	}

	if len(body.Documents) > maxBatchDocuments {
		writeServiceError(ctx, w, &service.ValidationError{Field: "documents", Message: "too many documents in one batch"}, "Invalid batch")
		return
	}
	docs := make([]indexer.Document, 0, len(body.Documents))
	for _, req := range body.Documents {
		doc, err := h.toDocument(tenant, req)
		if err != nil {
			writeServiceError(ctx, w, err, "Invalid document "+req.ExternalID)
			return
		}
		docs = append(docs, doc)
	}

	results, err := h.ingester.IngestAll(ctx, docs)
	if err != nil && len(results) == 0 {
		writeServiceError(ctx, w, err, "Failed to ingest documents")
		return
	}
	resp := IngestResponse{Results: results}
	if err != nil {
		resp.Errors = splitErrors(err)
	}
	writeJSON(ctx, w, http.StatusOK, resp)
}

// Delete handles DELETE /api/v1/documents/{externalID}.
func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.ingester.Delete(ctx, tenantID(r), chi.URLParam(r, "externalID")); err != nil {
		writeServiceError(ctx, w, err, "Failed to delete document")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func splitErrors(err error) []string {
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		errs := joined.Unwrap()
		out := make([]string, len(errs))
		for i, e := range errs {
			out[i] = e.Error()
		}
		return out
	}
	return []string{err.Error()}
}
