package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/em-ech/siftopsv1-sub000/internal/contextutil"
	"github.com/em-ech/siftopsv1-sub000/internal/rag"
)

// AskHandler handles grounded questions against a locked bundle.
type AskHandler struct {
	engine rag.Engine
}

// NewAskHandler creates a new AskHandler.
func NewAskHandler(engine rag.Engine) *AskHandler {
	return &AskHandler{engine: engine}
}

// AskRequest represents the HTTP request payload for grounded questions.
//
// swagger:model AskRequest
type AskRequest struct {
	Question string `json:"question"`
}

// AskResponse represents the HTTP response payload for grounded questions.
//
// swagger:model AskResponse
type AskResponse struct {
	BundleID string `json:"bundle_id"`
	// The generated answer, or the not-found sentinel
	Answer string `json:"answer"`
	// Found is false when the evidence did not support an answer.
	Found         bool               `json:"found"`
	Citations     []CitationResponse `json:"citations"`
	EvidenceCount int                `json:"evidence_count"`
}

// CitationResponse represents a citation in the HTTP response.
//
// swagger:model CitationResponse
type CitationResponse struct {
	Marker     string `json:"marker"`
	DocumentID string `json:"document_id"`
	Title      string `json:"title"`
	URL        string `json:"url,omitempty"`
	SourceID   string `json:"source_id"`
	Excerpt    string `json:"excerpt"`
}

// ServeHTTP handles HTTP requests for grounded questions.
//
// swagger:route POST /api/v1/bundles/{id}/ask askQuestion
//
// # Ask a question against a locked bundle
//
// The bundle must be locked. Answers cite bundle documents with [Cn] markers.
//
// responses:
//
//	'200':
//	  schema:
//	    "$ref": "#/definitions/AskResponse"
//	'404':
//	  description: Bundle not found
//	'409':
//	  description: Bundle is not locked
//	'502':
//	  description: Generation failed; retry later
func (h *AskHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	var req AskRequest
	if err := decodeJSON(w, r, &req); err != nil {
		logger.WarnContext(ctx, "invalid request body", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	ans, err := h.engine.Ask(ctx, rag.AskRequest{
		TenantID: tenantID(r),
		BundleID: chi.URLParam(r, "id"),
		Question: req.Question,
	})
	if err != nil {
		writeServiceError(ctx, w, err, "Failed to answer question")
		return
	}

	citations := make([]CitationResponse, len(ans.Citations))
	for i, c := range ans.Citations {
		citations[i] = CitationResponse{
			Marker:     c.Marker,
			DocumentID: c.DocumentID,
			Title:      c.Title,
			URL:        c.URL,
			SourceID:   c.SourceID,
			Excerpt:    c.Excerpt,
		}
	}
	writeJSON(ctx, w, http.StatusOK, AskResponse{
		BundleID:      ans.BundleID,
		Answer:        ans.Answer,
		Found:         ans.Found,
		Citations:     citations,
		EvidenceCount: ans.EvidenceCount,
	})
}
