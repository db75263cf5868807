package storage

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_document_store.go -package=mocks github.com/em-ech/siftopsv1-sub000/internal/storage DocumentStore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when a record is not found.
	ErrNotFound = errors.New("record not found")
)

// DocumentStore defines the interface for document lookups.
type DocumentStore interface {
	// Get gets a document by tenant and external id.
	// Returns nil and ErrNotFound if not found.
	Get(ctx context.Context, tenantID, externalID string) (*DocumentRecord, error)
	// GetMany returns the documents that exist among externalIDs, keyed by external id.
	GetMany(ctx context.Context, tenantID string, externalIDs []string) (map[string]*DocumentRecord, error)
	// UpdateMetadata refreshes descriptive fields without touching text or chunks.
	// Returns ErrNotFound if the document does not exist.
	UpdateMetadata(ctx context.Context, doc *DocumentRecord) error
}

// DocumentRepo provides methods for document operations.
// It implements the DocumentStore interface.
type DocumentRepo struct {
	db *sql.DB
}

// NewDocumentRepo creates a new DocumentRepo.
func NewDocumentRepo(db *sql.DB) *DocumentRepo {
	return &DocumentRepo{db: db}
}

// DB returns the underlying database handle.
func (r *DocumentRepo) DB() *sql.DB {
	return r.db
}

const documentColumns = "tenant_id, external_id, source_id, title, url, category, text, available, published_at, hash, updated_at"

func scanDocument(row rowScanner) (*DocumentRecord, error) {
	var doc DocumentRecord
	var available sql.NullBool
	var published sql.NullTime
	if err := row.Scan(&doc.TenantID, &doc.ExternalID, &doc.SourceID, &doc.Title, &doc.URL, &doc.Category,
		&doc.Text, &available, &published, &doc.Hash, &doc.UpdatedAt); err != nil {
		return nil, err
	}
	if available.Valid {
		v := available.Bool
		doc.Available = &v
	}
	if published.Valid {
		t := published.Time
		doc.PublishedAt = &t
	}
	return &doc, nil
}

// Get gets a document by tenant and external id.
// Returns nil and ErrNotFound if not found.
func (r *DocumentRepo) Get(ctx context.Context, tenantID, externalID string) (*DocumentRecord, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+documentColumns+" FROM documents WHERE tenant_id = ? AND external_id = ?",
		tenantID, externalID,
	)
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query document: %w", err)
	}
	return doc, nil
}

// GetMany returns the documents that exist among externalIDs, keyed by external id.
// Missing ids are simply absent from the map.
func (r *DocumentRepo) GetMany(ctx context.Context, tenantID string, externalIDs []string) (map[string]*DocumentRecord, error) {
	out := make(map[string]*DocumentRecord, len(externalIDs))
	if len(externalIDs) == 0 {
		return out, nil
	}

	docs, err := queryAll(ctx, r.db, scanDocument,
		"SELECT "+documentColumns+" FROM documents WHERE tenant_id = ? AND external_id IN ("+placeholders(len(externalIDs))+")",
		stringArgs(externalIDs, tenantID)...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	for _, doc := range docs {
		out[doc.ExternalID] = doc
	}
	return out, nil
}

// UpdateMetadata updates everything but the text of an existing document.
// Used when a re-delivered document has unchanged text.
func (r *DocumentRepo) UpdateMetadata(ctx context.Context, doc *DocumentRecord) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE documents SET source_id = ?, title = ?, url = ?, category = ?, available = ?, published_at = ?, updated_at = ?
		 WHERE tenant_id = ? AND external_id = ?`,
		doc.SourceID, doc.Title, doc.URL, doc.Category, nullBool(doc.Available), nullTime(doc.PublishedAt), time.Now().UTC(),
		doc.TenantID, doc.ExternalID,
	)
	if err != nil {
		return fmt.Errorf("failed to update document: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Counts returns corpus counts for a tenant.
func (r *DocumentRepo) Counts(ctx context.Context, tenantID string) (*CorpusCounts, error) {
	var c CorpusCounts
	err := r.db.QueryRowContext(ctx,
		`SELECT
			(SELECT COUNT(*) FROM documents WHERE tenant_id = ?),
			(SELECT COUNT(*) FROM chunks WHERE tenant_id = ?),
			(SELECT COUNT(*) FROM documents d WHERE d.tenant_id = ?
				AND NOT EXISTS (SELECT 1 FROM chunks c WHERE c.tenant_id = d.tenant_id AND c.document_id = d.external_id)),
			(SELECT COUNT(*) FROM directives WHERE tenant_id = ?),
			(SELECT COUNT(*) FROM bundles WHERE tenant_id = ?)`,
		tenantID, tenantID, tenantID, tenantID, tenantID,
	).Scan(&c.Documents, &c.Chunks, &c.DocumentsNoChunks, &c.Directives, &c.Bundles)
	if err != nil {
		return nil, fmt.Errorf("failed to count corpus: %w", err)
	}
	return &c, nil
}

// upsertDocument writes doc inside tx, keyed by (tenant_id, external_id).
func upsertDocument(ctx context.Context, tx *sql.Tx, doc *DocumentRecord) error {
	doc.UpdatedAt = time.Now().UTC()
	_, err := tx.ExecContext(ctx,
		`INSERT INTO documents (`+documentColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (tenant_id, external_id) DO UPDATE SET
		 source_id = excluded.source_id, title = excluded.title, url = excluded.url,
		 category = excluded.category, text = excluded.text, available = excluded.available,
		 published_at = excluded.published_at, hash = excluded.hash, updated_at = excluded.updated_at`,
		doc.TenantID, doc.ExternalID, doc.SourceID, doc.Title, doc.URL, doc.Category, doc.Text,
		nullBool(doc.Available), nullTime(doc.PublishedAt), doc.Hash, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert document: %w", err)
	}
	return nil
}
