package handlers

import (
	"context"
	"net/http"

	"github.com/em-ech/siftopsv1-sub000/internal/contextutil"
	"github.com/em-ech/siftopsv1-sub000/internal/ranking"
	"github.com/em-ech/siftopsv1-sub000/internal/service"
)

// Searcher runs a hybrid search.
type Searcher interface {
	Search(ctx context.Context, req service.SearchRequest) (*service.SearchResponse, error)
}

// SearchHandler handles HTTP requests for search queries.
type SearchHandler struct {
	searcher Searcher
}

// NewSearchHandler creates a new SearchHandler.
func NewSearchHandler(searcher Searcher) *SearchHandler {
	return &SearchHandler{searcher: searcher}
}

// SearchRequest is the HTTP request payload for search.
//
// swagger:model SearchRequest
type SearchRequest struct {
	Query    string `json:"query"`
	Category string `json:"category,omitempty"`
	TopK     int    `json:"top_k,omitempty"`
}

// SearchResponse is the HTTP response payload for search.
//
// swagger:model SearchResponse
type SearchResponse struct {
	// Outcome is ok, no_confident_match or no_results.
	Outcome  string         `json:"outcome"`
	Results  []SearchResult `json:"results"`
	TopScore float64        `json:"top_score"`
	Debug    *SearchDebug   `json:"debug,omitempty"`
}

// SearchResult is one ranked document.
//
// swagger:model SearchResult
type SearchResult struct {
	ItemID   string   `json:"item_id"`
	Title    string   `json:"title"`
	URL      string   `json:"url,omitempty"`
	Category string   `json:"category,omitempty"`
	SourceID string   `json:"source_id"`
	Score    float64  `json:"score"`
	Pinned   bool     `json:"pinned,omitempty"`
	Lexical  *float64 `json:"lexical_score,omitempty"`
	Semantic *float64 `json:"semantic_score,omitempty"`
	// Directive is the action of the directive applied to this item, if any.
	Directive string `json:"directive,omitempty"`
}

// SearchDebug exposes retrieval counts and timings (?debug=true).
//
// swagger:model SearchDebug
type SearchDebug struct {
	LexicalHits int      `json:"lexical_hits"`
	VectorHits  int      `json:"vector_hits"`
	Candidates  int      `json:"candidates"`
	Injected    int      `json:"injected_pins"`
	CacheHit    bool     `json:"cache_hit"`
	Degraded    []string `json:"degraded,omitempty"`
	EmbedMs     int64    `json:"embed_ms"`
	RetrieveMs  int64    `json:"retrieve_ms"`
	RankMs      int64    `json:"rank_ms"`
}

// ServeHTTP handles HTTP requests for search.
//
// swagger:route POST /api/v1/search search
//
// # Hybrid search
//
// Ranks documents by lexical and semantic relevance, applies operator
// directives and gates low-confidence result sets.
//
// responses:
//
//	'200':
//	  schema:
//	    "$ref": "#/definitions/SearchResponse"
//	'400':
//	  schema:
//	    "$ref": "#/definitions/ErrorResponse"
//	'502':
//	  schema:
//	    "$ref": "#/definitions/ErrorResponse"
func (h *SearchHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	var req SearchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		logger.WarnContext(ctx, "invalid request body", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	res, err := h.searcher.Search(ctx, service.SearchRequest{
		TenantID: tenantID(r),
		Query:    req.Query,
		Category: req.Category,
		TopK:     req.TopK,
		Debug:    isDebug(r),
	})
	if err != nil {
		writeServiceError(ctx, w, err, "Failed to search")
		return
	}

	resp := SearchResponse{
		Outcome:  string(res.Outcome),
		Results:  make([]SearchResult, 0, len(res.Results)),
		TopScore: res.TopScore,
	}
	for _, item := range res.Results {
		out := SearchResult{
			ItemID:   item.ItemID,
			Title:    item.Title,
			URL:      item.URL,
			Category: item.Category,
			SourceID: item.SourceID,
			Score:    item.Score,
			Pinned:   item.Pinned,
			Lexical:  item.Lexical,
			Semantic: item.Semantic,
		}
		if item.Directive != nil {
			out.Directive = item.Directive.Action.String()
		}
		resp.Results = append(resp.Results, out)
	}
	if d := res.Debug; d != nil {
		resp.Debug = &SearchDebug{
			LexicalHits: d.LexicalHits,
			VectorHits:  d.VectorHits,
			Candidates:  d.Candidates,
			Injected:    d.Injected,
			CacheHit:    d.CacheHit,
			Degraded:    d.Degraded,
			EmbedMs:     d.EmbedMillis,
			RetrieveMs:  d.RetrieveMillis,
			RankMs:      d.RankMillis,
		}
	}
	if res.Outcome == ranking.OutcomeNoConfidentMatch {
		logger.InfoContext(ctx, "search gated for low confidence", "top_score", res.TopScore)
	}

	writeJSON(ctx, w, http.StatusOK, resp)
}
