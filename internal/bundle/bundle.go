// Package bundle implements evidence bundles: user-curated sets of documents
// that must be locked before an answer can be synthesized from them.
package bundle

import (
	"fmt"
	"slices"
	"time"

	"github.com/em-ech/siftopsv1-sub000/internal/service"
)

// ErrLocked is returned when membership of a locked bundle would change.
var ErrLocked = fmt.Errorf("%w: bundle is locked", service.ErrInvalidState)

// State is the lifecycle state of an existing bundle.
type State string

const (
	StateOpen   State = "open"
	StateLocked State = "locked"
)

// Bundle is an evidence bundle. Members are document external ids, unique,
// kept in the order they were added.
type Bundle struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Members   []string  `json:"members"`
	Locked    bool      `json:"locked"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New returns an empty open bundle.
func New(tenantID, id string, now time.Time) *Bundle {
	return &Bundle{
		ID:        id,
		TenantID:  tenantID,
		Members:   []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// State reports whether the bundle is open or locked.
func (b *Bundle) State() State {
	if b.Locked {
		return StateLocked
	}
	return StateOpen
}

// Has reports whether docID is a member.
func (b *Bundle) Has(docID string) bool {
	return slices.Contains(b.Members, docID)
}

// Add appends docID. Adding a present member is a no-op.
func (b *Bundle) Add(docID string) (bool, error) {
	if b.Locked {
		return false, ErrLocked
	}
	if b.Has(docID) {
		return false, nil
	}
	b.Members = append(b.Members, docID)
	return true, nil
}

// Remove drops docID. Removing an absent member is a no-op.
func (b *Bundle) Remove(docID string) (bool, error) {
	if b.Locked {
		return false, ErrLocked
	}
	i := slices.Index(b.Members, docID)
	if i < 0 {
		return false, nil
	}
	b.Members = slices.Delete(b.Members, i, i+1)
	return true, nil
}

// Lock freezes membership. An empty bundle can be locked; locking twice is a no-op.
func (b *Bundle) Lock() bool {
	if b.Locked {
		return false
	}
	b.Locked = true
	return true
}

// Clear empties and unlocks the bundle. It is the only way out of the locked state.
func (b *Bundle) Clear() {
	b.Members = []string{}
	b.Locked = false
}

// Clone returns a deep copy.
func (b *Bundle) Clone() *Bundle {
	c := *b
	c.Members = slices.Clone(b.Members)
	if c.Members == nil {
		c.Members = []string{}
	}
	return &c
}
