package storage

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_chunk_store.go -package=mocks github.com/em-ech/siftopsv1-sub000/internal/storage ChunkStore

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
)

// ChunkStore persists chunks with their full-text index rows.
type ChunkStore interface {
	// ReplaceForDocument upserts doc and swaps its chunks (and their full-text rows) in one transaction.
	// Returns the IDs of the chunks that were replaced.
	ReplaceForDocument(ctx context.Context, doc *DocumentRecord, chunks []*ChunkRecord) ([]string, error)
	// DeleteDocument removes a document with its chunks and returns the removed chunk IDs.
	// Returns ErrNotFound if the document does not exist.
	DeleteDocument(ctx context.Context, tenantID, externalID string) ([]string, error)
	// ListByDocument returns a document's chunks ordered by ordinal.
	ListByDocument(ctx context.Context, tenantID, documentID string) ([]*ChunkRecord, error)
	// FilterLive returns the subset of ids that still exist.
	FilterLive(ctx context.Context, ids []string) (map[string]struct{}, error)
	// SearchLexical runs an FTS4 MATCH expression and returns chunks ordered by BM25.
	SearchLexical(ctx context.Context, tenantID, matchExpr, category string, limit int) ([]ChunkHit, error)
}

// ChunkRepo is the SQLite ChunkStore.
type ChunkRepo struct {
	db *sql.DB
}

// NewChunkRepo creates a new ChunkRepo.
func NewChunkRepo(db *sql.DB) *ChunkRepo {
	return &ChunkRepo{db: db}
}

// DB returns the underlying database handle.
func (r *ChunkRepo) DB() *sql.DB {
	return r.db
}

// ReplaceForDocument upserts doc and swaps its chunks in one transaction, so readers
// see either the old version or the new one, never a mix.
// Every chunk.ID must be set before calling.
func (r *ChunkRepo) ReplaceForDocument(ctx context.Context, doc *DocumentRecord, chunks []*ChunkRecord) ([]string, error) {
	var oldIDs []string
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		if err := upsertDocument(ctx, tx, doc); err != nil {
			return err
		}
		var err error
		if oldIDs, err = deleteChunksTx(ctx, tx, doc.TenantID, doc.ExternalID); err != nil {
			return err
		}
		return insertChunksTx(ctx, tx, doc, chunks)
	})
	if err != nil {
		return nil, err
	}
	return oldIDs, nil
}

// DeleteDocument removes a document with its chunks and returns the removed chunk IDs.
func (r *ChunkRepo) DeleteDocument(ctx context.Context, tenantID, externalID string) ([]string, error) {
	var ids []string
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		if ids, err = deleteChunksTx(ctx, tx, tenantID, externalID); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, "DELETE FROM documents WHERE tenant_id = ? AND external_id = ?", tenantID, externalID)
		if err != nil {
			return fmt.Errorf("failed to delete document: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// inTx runs fn in a transaction, committing only when fn succeeds.
func (r *ChunkRepo) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// insertChunksTx writes chunks and their full-text rows. The FTS docid of a
// chunk is its seq, which is what SearchLexical joins on.
func insertChunksTx(ctx context.Context, tx *sql.Tx, doc *DocumentRecord, chunks []*ChunkRecord) error {
	if len(chunks) == 0 {
		return nil
	}
	insChunk, err := tx.PrepareContext(ctx, "INSERT INTO chunks (id, tenant_id, document_id, ordinal, text, tokens) VALUES (?, ?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare chunk insert: %w", err)
	}
	defer func() {
		_ = insChunk.Close()
	}()
	insText, err := tx.PrepareContext(ctx, "INSERT INTO chunks_fts (docid, text) VALUES (?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare text index insert: %w", err)
	}
	defer func() {
		_ = insText.Close()
	}()

	for _, c := range chunks {
		res, err := insChunk.ExecContext(ctx, c.ID, doc.TenantID, doc.ExternalID, c.Ordinal, c.Text, tokenCount(c.Text))
		if err != nil {
			return fmt.Errorf("failed to insert chunk %d: %w", c.Ordinal, err)
		}
		seq, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read chunk seq: %w", err)
		}
		if _, err := insText.ExecContext(ctx, seq, c.Text); err != nil {
			return fmt.Errorf("failed to index chunk %d: %w", c.Ordinal, err)
		}
	}
	return nil
}

// deleteChunksTx removes a document's chunks and full-text rows, returning the chunk IDs.
func deleteChunksTx(ctx context.Context, tx *sql.Tx, tenantID, documentID string) ([]string, error) {
	ids, err := queryAll(ctx, tx, scanString,
		"SELECT id FROM chunks WHERE tenant_id = ? AND document_id = ? ORDER BY ordinal",
		tenantID, documentID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks of %s: %w", documentID, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	stmts := []string{
		"DELETE FROM chunks_fts WHERE docid IN (SELECT seq FROM chunks WHERE tenant_id = ? AND document_id = ?)",
		"DELETE FROM chunks WHERE tenant_id = ? AND document_id = ?",
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt, tenantID, documentID); err != nil {
			return nil, fmt.Errorf("failed to delete chunks of %s: %w", documentID, err)
		}
	}
	return ids, nil
}

func scanChunk(row rowScanner) (*ChunkRecord, error) {
	var c ChunkRecord
	err := row.Scan(&c.ID, &c.TenantID, &c.DocumentID, &c.Ordinal, &c.Text)
	return &c, err
}

// ListByDocument returns a document's chunks ordered by ordinal; none is not an error.
func (r *ChunkRepo) ListByDocument(ctx context.Context, tenantID, documentID string) ([]*ChunkRecord, error) {
	chunks, err := queryAll(ctx, r.db, scanChunk,
		"SELECT id, tenant_id, document_id, ordinal, text FROM chunks WHERE tenant_id = ? AND document_id = ? ORDER BY ordinal",
		tenantID, documentID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	return chunks, nil
}

// FilterLive returns the subset of ids that still exist in the chunks table.
func (r *ChunkRepo) FilterLive(ctx context.Context, ids []string) (map[string]struct{}, error) {
	live := make(map[string]struct{}, len(ids))
	if len(ids) == 0 {
		return live, nil
	}
	found, err := queryAll(ctx, r.db, scanString,
		"SELECT id FROM chunks WHERE id IN ("+placeholders(len(ids))+")",
		stringArgs(ids)...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query live chunks: %w", err)
	}
	for _, id := range found {
		live[id] = struct{}{}
	}
	return live, nil
}

// SearchLexical runs an FTS4 MATCH expression scoped to a tenant and optional category.
// Results are ordered by BM25 over the tenant's own chunks: row count, average
// length and document frequencies ignore every other tenant.
func (r *ChunkRepo) SearchLexical(ctx context.Context, tenantID, matchExpr, category string, limit int) ([]ChunkHit, error) {
	if matchExpr == "" || limit <= 0 {
		return nil, nil
	}

	var stats termStats
	var tokens int64
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(tokens), 0) FROM chunks WHERE tenant_id = ?", tenantID,
	).Scan(&stats.rows, &tokens)
	if err != nil {
		return nil, fmt.Errorf("failed to read tenant statistics: %w", err)
	}
	if stats.rows == 0 {
		return nil, nil
	}
	stats.avgLen = float64(tokens) / float64(stats.rows)

	// Every tenant match counts toward document frequency; the category
	// filter applies only to what is returned.
	rows, err := queryAll(ctx, r.db, scanLexicalRow,
		`SELECT c.id, c.document_id, d.category, c.tokens, matchinfo(chunks_fts, 'pcx')
		 FROM chunks_fts
		 JOIN chunks c ON c.seq = chunks_fts.docid
		 JOIN documents d ON d.tenant_id = c.tenant_id AND d.external_id = c.document_id
		 WHERE chunks_fts MATCH ? AND c.tenant_id = ?`,
		matchExpr, tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}
	for _, row := range rows {
		for p, n := range row.tf {
			for len(stats.docFreq) <= p {
				stats.docFreq = append(stats.docFreq, 0)
			}
			if n > 0 {
				stats.docFreq[p]++
			}
		}
	}

	hits := make([]ChunkHit, 0, len(rows))
	for _, row := range rows {
		if category != "" && row.category != category {
			continue
		}
		row.hit.Score = bm25(row.tf, row.tokens, stats)
		hits = append(hits, row.hit)
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

type lexicalRow struct {
	hit      ChunkHit
	category string
	tokens   int
	tf       []int
}

func scanLexicalRow(row rowScanner) (lexicalRow, error) {
	var r lexicalRow
	var matchinfo []byte
	if err := row.Scan(&r.hit.ChunkID, &r.hit.DocumentID, &r.category, &r.tokens, &matchinfo); err != nil {
		return r, err
	}
	r.tf = phraseHits(matchinfo)
	return r, nil
}

// ChunkTexts returns every chunk text for a tenant, used for coverage statistics.
func (r *ChunkRepo) ChunkTexts(ctx context.Context, tenantID string) ([]string, error) {
	texts, err := queryAll(ctx, r.db, scanString, "SELECT text FROM chunks WHERE tenant_id = ?", tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to read chunk texts: %w", err)
	}
	return texts, nil
}
