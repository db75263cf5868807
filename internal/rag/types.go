package rag

// NotFoundSentinel is the exact answer returned when the locked evidence
// does not support an answer.
const NotFoundSentinel = "I could not find this in the selected sources."

const (
	// MaxExcerptRunes bounds Citation.Excerpt.
	MaxExcerptRunes = 280
	// DefaultMaxEvidenceRunes bounds the text of one evidence entry in the prompt.
	DefaultMaxEvidenceRunes = 6000
)

// AskRequest asks a question against a locked evidence bundle.
type AskRequest struct {
	TenantID string `json:"-"`
	BundleID string `json:"-"`
	// Question is the user's question to answer.
	Question string `json:"question"`
}

// Evidence is one bundle member as presented to the generator.
type Evidence struct {
	// Marker is the citation tag, C1 for the first member.
	Marker     string
	DocumentID string
	Title      string
	URL        string
	SourceID   string
	// Text is the selected passages in document order.
	Text string
	// Lead is the passage that best matched the question; citations excerpt it.
	Lead string
}

// Citation maps a marker in the answer back to its source.
type Citation struct {
	Marker     string `json:"marker"`
	DocumentID string `json:"document_id"`
	Title      string `json:"title"`
	URL        string `json:"url,omitempty"`
	SourceID   string `json:"source_id"`
	// Excerpt is the start of the best matching passage sent, at most MaxExcerptRunes runes.
	Excerpt string `json:"excerpt"`
}

// Answer is the outcome of a grounded synthesis.
type Answer struct {
	BundleID string `json:"bundle_id"`
	// Answer is the generated text, or NotFoundSentinel.
	Answer    string     `json:"answer"`
	Found     bool       `json:"found"`
	Citations []Citation `json:"citations"`
	// EvidenceCount is how many members contributed text.
	EvidenceCount int `json:"evidence_count"`
}

func notFound(bundleID string, evidence int) *Answer {
	return &Answer{
		BundleID:      bundleID,
		Answer:        NotFoundSentinel,
		Citations:     []Citation{},
		EvidenceCount: evidence,
	}
}
