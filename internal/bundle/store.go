package bundle

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_store.go -package=mocks github.com/em-ech/siftopsv1-sub000/internal/bundle Store

import (
	"context"
	"errors"
)

// ErrExists is returned by Store.Create when the id is taken.
var ErrExists = errors.New("bundle already exists")

// MutateFunc changes a bundle in place. Returning an error discards the change.
type MutateFunc func(b *Bundle) error

// Store persists bundles.
type Store interface {
	// Create stores a new bundle. Returns ErrExists if the id is taken.
	Create(ctx context.Context, b *Bundle) error
	// Get returns a bundle. Returns service.ErrNotFound if it does not exist.
	Get(ctx context.Context, tenantID, id string) (*Bundle, error)
	// Update loads the bundle, applies fn and writes the result as one atomic
	// step. Returns service.ErrNotFound if the bundle does not exist.
	Update(ctx context.Context, tenantID, id string, fn MutateFunc) (*Bundle, error)
	// Delete removes a bundle. Returns service.ErrNotFound if it does not exist.
	Delete(ctx context.Context, tenantID, id string) error
}
