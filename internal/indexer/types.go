package indexer

import "time"

// Span is a half-open range of rune offsets into normalized document text.
type Span struct {
	Start int
	End   int
}

// Len returns the span length in runes.
func (s Span) Len() int { return s.End - s.Start }

// Chunk is one window of a document's text.
type Chunk struct {
	Ordinal int // 0-based, contiguous within a document
	Text    string
	Span    Span
}

// Format identifies how a document body is marked up.
type Format string

// Supported document formats.
const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
)

// Document is a connector-delivered source document before indexing.
type Document struct {
	TenantID    string
	ExternalID  string
	SourceID    string
	Title       string
	URL         string
	Category    string
	Body        string
	Format      Format
	Available   *bool
	PublishedAt *time.Time
}

// IngestResult reports what Ingest did with a document.
type IngestResult struct {
	ExternalID string `json:"external_id"`
	Chunks     int    `json:"chunks"`
	Skipped    bool   `json:"skipped"` // body unchanged since last ingest
}
