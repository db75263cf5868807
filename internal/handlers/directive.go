package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/em-ech/siftopsv1-sub000/internal/contextutil"
	"github.com/em-ech/siftopsv1-sub000/internal/ranking"
	"github.com/em-ech/siftopsv1-sub000/internal/service"
	"github.com/em-ech/siftopsv1-sub000/internal/storage"
)

// DirectiveHandler lets operators author ranking directives.
type DirectiveHandler struct {
	store storage.DirectiveStore
}

// NewDirectiveHandler creates a new DirectiveHandler.
func NewDirectiveHandler(store storage.DirectiveStore) *DirectiveHandler {
	return &DirectiveHandler{store: store}
}

// DirectiveRequest creates or replaces a directive.
//
// swagger:model DirectiveRequest
type DirectiveRequest struct {
	// ScopeKind is query, category or global.
	ScopeKind  string `json:"scope_kind"`
	ScopeValue string `json:"scope_value,omitempty"`
	Target     string `json:"target"`
	// Action is pin, boost, demote or exclude.
	Action string `json:"action"`
	// Weight defaults per action when omitted.
	Weight float64 `json:"weight,omitempty"`
}

// DirectiveResponse is the HTTP representation of a directive.
//
// swagger:model DirectiveResponse
type DirectiveResponse struct {
	ID         string    `json:"id"`
	ScopeKind  string    `json:"scope_kind"`
	ScopeValue string    `json:"scope_value"`
	Target     string    `json:"target"`
	Action     string    `json:"action"`
	Weight     float64   `json:"weight"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// DirectiveListResponse wraps a directive listing.
//
// swagger:model DirectiveListResponse
type DirectiveListResponse struct {
	Directives []DirectiveResponse `json:"directives"`
}

func toDirectiveResponse(d ranking.Directive) DirectiveResponse {
	return DirectiveResponse{
		ID:         d.ID,
		ScopeKind:  d.Scope.String(),
		ScopeValue: d.ScopeValue,
		Target:     d.Target,
		Action:     d.Action.String(),
		Weight:     d.Weight,
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}
}

// List handles GET /api/v1/directives?scope_kind=&scope_value=.
func (h *DirectiveHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var scope ranking.Scope
	if kind := r.URL.Query().Get("scope_kind"); kind != "" {
		s, err := ranking.ParseScope(kind)
		if err != nil {
			writeServiceError(ctx, w, &service.ValidationError{Field: "scope_kind", Message: err.Error()}, "Invalid directive filter")
			return
		}
		scope = s
	}

	directives, err := h.store.List(ctx, tenantID(r), scope, r.URL.Query().Get("scope_value"))
	if err != nil {
		writeServiceError(ctx, w, err, "Failed to list directives")
		return
	}
	resp := DirectiveListResponse{Directives: make([]DirectiveResponse, 0, len(directives))}
	for _, d := range directives {
		resp.Directives = append(resp.Directives, toDirectiveResponse(d))
	}
	writeJSON(ctx, w, http.StatusOK, resp)
}

// Put handles PUT /api/v1/directives.
func (h *DirectiveHandler) Put(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req DirectiveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		contextutil.LoggerFromContext(ctx).WarnContext(ctx, "invalid request body", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	d, err := ParseDirective(tenantID(r), req)
	if err != nil {
		writeServiceError(ctx, w, err, "Invalid directive")
		return
	}
	if err := h.store.Upsert(ctx, &d); err != nil {
		writeServiceError(ctx, w, err, "Failed to save directive")
		return
	}
	contextutil.LoggerFromContext(ctx).InfoContext(ctx, "directive saved",
		"directive_id", d.ID,
		"scope", d.Scope.String(),
		"target", d.Target,
		"action", d.Action.String(),
	)
	writeJSON(ctx, w, http.StatusOK, toDirectiveResponse(d))
}

// Delete handles DELETE /api/v1/directives/{id}.
func (h *DirectiveHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.store.Delete(ctx, tenantID(r), chi.URLParam(r, "id")); err != nil {
		writeServiceError(ctx, w, err, "Failed to delete directive")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ParseDirective converts the wire form into a normalized, validated directive for tenantID.
func ParseDirective(tenantID string, req DirectiveRequest) (ranking.Directive, error) {
	scope, err := ranking.ParseScope(req.ScopeKind)
	if err != nil {
		return ranking.Directive{}, &service.ValidationError{Field: "scope_kind", Message: err.Error()}
	}
	action, err := ranking.ParseAction(req.Action)
	if err != nil {
		return ranking.Directive{}, &service.ValidationError{Field: "action", Message: err.Error()}
	}
	d := ranking.Directive{
		TenantID:   tenantID,
		Scope:      scope,
		ScopeValue: req.ScopeValue,
		Target:     req.Target,
		Action:     action,
		Weight:     req.Weight,
	}
	d.Normalize()
	if err := d.Validate(); err != nil {
		return ranking.Directive{}, err
	}
	return d, nil
}
