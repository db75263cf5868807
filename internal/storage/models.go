package storage

import "time"

// DocumentRecord is a source document as stored in the documents table.
type DocumentRecord struct {
	TenantID    string
	ExternalID  string // unique per tenant, used as the item id everywhere else
	SourceID    string
	Title       string
	URL         string
	Category    string
	Text        string // normalized plain text
	Available   *bool
	PublishedAt *time.Time
	Hash        string // SHA256 hex of Text
	UpdatedAt   time.Time
}

// ChunkRecord is one overlapping slice of a document, indexed for lexical and vector search.
type ChunkRecord struct {
	ID         string // UUID (same as the vector point ID)
	TenantID   string
	DocumentID string // owning document external id
	Ordinal    int    // 0-based, contiguous within a document
	Text       string
}

// ChunkHit is a chunk matched by the full-text index.
type ChunkHit struct {
	ChunkID    string
	DocumentID string
	Score      float64 // raw BM25, higher is better
}

// CorpusCounts summarizes what is indexed for a tenant.
type CorpusCounts struct {
	Documents         int
	Chunks            int
	DocumentsNoChunks int
	Directives        int
	Bundles           int
}
