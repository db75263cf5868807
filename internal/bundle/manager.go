package bundle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/em-ech/siftopsv1-sub000/internal/contextutil"
	"github.com/em-ech/siftopsv1-sub000/internal/service"
	"github.com/em-ech/siftopsv1-sub000/internal/storage"
)

// DocumentLookup checks that documents exist before they join a bundle.
type DocumentLookup interface {
	Get(ctx context.Context, tenantID, externalID string) (*storage.DocumentRecord, error)
}

// Manager runs bundle transitions. Transitions on the same bundle are
// serialized, and each is applied through Store.Update so the state check
// and the mutation happen together.
type Manager struct {
	store Store
	docs  DocumentLookup
	locks *keyedMutex
	newID func() string
	now   func() time.Time
}

// NewManager creates a Manager.
func NewManager(store Store, docs DocumentLookup) *Manager {
	return &Manager{
		store: store,
		docs:  docs,
		locks: newKeyedMutex(),
		newID: func() string { return uuid.New().String() },
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Create starts an empty open bundle.
func (m *Manager) Create(ctx context.Context, tenantID string) (*Bundle, error) {
	if tenantID == "" {
		return nil, &service.ValidationError{Field: "tenant_id", Message: "cannot be empty"}
	}
	b := New(tenantID, m.newID(), m.now())
	if err := m.store.Create(ctx, b); err != nil {
		return nil, fmt.Errorf("failed to create bundle: %w", err)
	}
	contextutil.LoggerFromContext(ctx).InfoContext(ctx, "bundle created", "tenant_id", tenantID, "bundle_id", b.ID)
	return b, nil
}

// Get returns a bundle.
func (m *Manager) Get(ctx context.Context, tenantID, id string) (*Bundle, error) {
	return m.store.Get(ctx, tenantID, id)
}

// Add puts a document into an open bundle.
func (m *Manager) Add(ctx context.Context, tenantID, id, docID string) (*Bundle, error) {
	docID = strings.TrimSpace(docID)
	if docID == "" {
		return nil, &service.ValidationError{Field: "document_id", Message: "cannot be empty"}
	}
	if _, err := m.docs.Get(ctx, tenantID, docID); err != nil {
		return nil, fmt.Errorf("document %s: %w", docID, err)
	}
	return m.update(ctx, "add", tenantID, id, func(b *Bundle) error {
		_, err := b.Add(docID)
		return err
	})
}

// Remove takes a document out of an open bundle.
func (m *Manager) Remove(ctx context.Context, tenantID, id, docID string) (*Bundle, error) {
	return m.update(ctx, "remove", tenantID, id, func(b *Bundle) error {
		_, err := b.Remove(docID)
		return err
	})
}

// Lock freezes a bundle. Locking a bundle that does not exist is both a
// not-found and an invalid-state error.
func (m *Manager) Lock(ctx context.Context, tenantID, id string) (*Bundle, error) {
	b, err := m.update(ctx, "lock", tenantID, id, func(b *Bundle) error {
		b.Lock()
		return nil
	})
	if errors.Is(err, service.ErrNotFound) {
		return nil, fmt.Errorf("%w: cannot lock missing bundle: %w", service.ErrInvalidState, err)
	}
	return b, err
}

// Clear empties and unlocks a bundle.
func (m *Manager) Clear(ctx context.Context, tenantID, id string) (*Bundle, error) {
	return m.update(ctx, "clear", tenantID, id, func(b *Bundle) error {
		b.Clear()
		return nil
	})
}

// Delete removes a bundle.
func (m *Manager) Delete(ctx context.Context, tenantID, id string) error {
	unlock := m.locks.Lock(tenantID + "/" + id)
	defer unlock()
	return m.store.Delete(ctx, tenantID, id)
}

func (m *Manager) update(ctx context.Context, op, tenantID, id string, fn MutateFunc) (*Bundle, error) {
	unlock := m.locks.Lock(tenantID + "/" + id)
	defer unlock()

	b, err := m.store.Update(ctx, tenantID, id, fn)
	if err != nil {
		return nil, err
	}
	contextutil.LoggerFromContext(ctx).DebugContext(ctx, "bundle updated",
		"op", op,
		"bundle_id", id,
		"state", b.State(),
		"members", len(b.Members),
	)
	return b, nil
}
