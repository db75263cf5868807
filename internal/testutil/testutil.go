// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"context"
	"database/sql"
	"hash/fnv"
	"math"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"unicode"

	"github.com/em-ech/siftopsv1-sub000/internal/storage"
)

// NewDB opens a migrated SQLite database in a temp dir, closed on cleanup.
func NewDB(t testing.TB) *sql.DB {
	t.Helper()
	db, err := storage.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("storage.New() error = %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	if err := storage.Migrate(db); err != nil {
		t.Fatalf("storage.Migrate() error = %v", err)
	}
	return db
}

// HashEmbedder embeds text as a normalized bag of hashed words.
// Texts sharing words get a positive cosine similarity, which is enough to
// exercise vector retrieval deterministically.
type HashEmbedder struct {
	Dim int

	mu    sync.Mutex
	calls int
	Err   error
}

// NewHashEmbedder creates an embedder producing dim-sized vectors.
func NewHashEmbedder(dim int) *HashEmbedder {
	return &HashEmbedder{Dim: dim}
}

// EmbedTexts returns one vector per text, or Err when set.
func (e *HashEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	err := e.Err
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = e.Vector(text)
	}
	return out, nil
}

// Calls returns how many EmbedTexts calls were made.
func (e *HashEmbedder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// Vector embeds a single text.
func (e *HashEmbedder) Vector(text string) []float32 {
	vec := make([]float32, e.Dim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		vec[int(h.Sum32())%e.Dim]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}
