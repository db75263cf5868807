package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/em-ech/siftopsv1-sub000/internal/bundle"
	"github.com/em-ech/siftopsv1-sub000/internal/contextutil"
)

// BundleManager runs evidence bundle transitions.
type BundleManager interface {
	Create(ctx context.Context, tenantID string) (*bundle.Bundle, error)
	Get(ctx context.Context, tenantID, id string) (*bundle.Bundle, error)
	Add(ctx context.Context, tenantID, id, docID string) (*bundle.Bundle, error)
	Remove(ctx context.Context, tenantID, id, docID string) (*bundle.Bundle, error)
	Lock(ctx context.Context, tenantID, id string) (*bundle.Bundle, error)
	Clear(ctx context.Context, tenantID, id string) (*bundle.Bundle, error)
	Delete(ctx context.Context, tenantID, id string) error
}

// BundleHandler exposes evidence bundles over HTTP.
type BundleHandler struct {
	manager BundleManager
}

// NewBundleHandler creates a new BundleHandler.
func NewBundleHandler(manager BundleManager) *BundleHandler {
	return &BundleHandler{manager: manager}
}

// BundleResponse is the HTTP representation of a bundle.
//
// swagger:model BundleResponse
type BundleResponse struct {
	ID string `json:"id"`
	// State is open or locked.
	State     string    `json:"state"`
	Members   []string  `json:"members"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AddItemRequest adds a document to a bundle.
//
// swagger:model AddItemRequest
type AddItemRequest struct {
	DocumentID string `json:"document_id"`
}

func toBundleResponse(b *bundle.Bundle) BundleResponse {
	return BundleResponse{
		ID:        b.ID,
		State:     string(b.State()),
		Members:   b.Members,
		CreatedAt: b.CreatedAt,
		UpdatedAt: b.UpdatedAt,
	}
}

// Create handles POST /api/v1/bundles.
func (h *BundleHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	b, err := h.manager.Create(ctx, tenantID(r))
	if err != nil {
		writeServiceError(ctx, w, err, "Failed to create bundle")
		return
	}
	writeJSON(ctx, w, http.StatusCreated, toBundleResponse(b))
}

// Get handles GET /api/v1/bundles/{id}.
func (h *BundleHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	b, err := h.manager.Get(ctx, tenantID(r), chi.URLParam(r, "id"))
	h.respond(w, r, b, err, "Failed to get bundle")
}

// AddItem handles POST /api/v1/bundles/{id}/items.
func (h *BundleHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req AddItemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		contextutil.LoggerFromContext(ctx).WarnContext(ctx, "invalid request body", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	b, err := h.manager.Add(ctx, tenantID(r), chi.URLParam(r, "id"), req.DocumentID)
	h.respond(w, r, b, err, "Failed to add document to bundle")
}

// RemoveItem handles DELETE /api/v1/bundles/{id}/items/{documentID}.
func (h *BundleHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	b, err := h.manager.Remove(r.Context(), tenantID(r), chi.URLParam(r, "id"), chi.URLParam(r, "documentID"))
	h.respond(w, r, b, err, "Failed to remove document from bundle")
}

// Lock handles POST /api/v1/bundles/{id}/lock.
func (h *BundleHandler) Lock(w http.ResponseWriter, r *http.Request) {
	b, err := h.manager.Lock(r.Context(), tenantID(r), chi.URLParam(r, "id"))
	h.respond(w, r, b, err, "Failed to lock bundle")
}

// Clear handles POST /api/v1/bundles/{id}/clear.
func (h *BundleHandler) Clear(w http.ResponseWriter, r *http.Request) {
	b, err := h.manager.Clear(r.Context(), tenantID(r), chi.URLParam(r, "id"))
	h.respond(w, r, b, err, "Failed to clear bundle")
}

// Delete handles DELETE /api/v1/bundles/{id}.
func (h *BundleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.manager.Delete(ctx, tenantID(r), chi.URLParam(r, "id")); err != nil {
		writeServiceError(ctx, w, err, "Failed to delete bundle")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *BundleHandler) respond(w http.ResponseWriter, r *http.Request, b *bundle.Bundle, err error, msg string) {
	if err != nil {
		writeServiceError(r.Context(), w, err, msg)
		return
	}
	writeJSON(r.Context(), w, http.StatusOK, toBundleResponse(b))
}
