package indexer

import (
	"fmt"
	"strings"
)

const (
	// DefaultChunkSize is the target chunk length in runes.
	DefaultChunkSize = 800
	// DefaultChunkOverlap is how many runes consecutive chunks share.
	DefaultChunkOverlap = 120
)

// Chunker splits normalized text into overlapping windows.
type Chunker struct {
	size    int
	overlap int
}

// NewChunker creates a chunker producing chunks of at most size runes that
// overlap by overlap runes. Overlap must be smaller than size.
func NewChunker(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunk overlap must be in [0, %d), got %d", size, overlap)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Size returns the target chunk length.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the configured overlap.
func (c *Chunker) Overlap() int { return c.overlap }

// Chunk normalizes whitespace in text and splits it.
// Each chunk's Text is exactly the normalized text within its Span.
// Empty input yields no chunks.
func (c *Chunker) Chunk(text string) []Chunk {
	runes := []rune(NormalizeWhitespace(text))
	n := len(runes)
	if n == 0 {
		return nil
	}
	if n <= c.size {
		return []Chunk{{Ordinal: 0, Text: string(runes), Span: Span{Start: 0, End: n}}}
	}

	var chunks []Chunk
	start := 0
	for {
		end := start + c.size
		if end >= n {
			end = n
		} else if cut := sentenceCut(runes, start+c.size/2, end); cut > 0 {
			end = cut
		}

		chunks = append(chunks, Chunk{
			Ordinal: len(chunks),
			Text:    string(runes[start:end]),
			Span:    Span{Start: start, End: end},
		})
		if end == n {
			return chunks
		}

		next := end - c.overlap
		if next <= start {
			next = end
		}
		start = next
	}
}

// sentenceCut returns the position just past the last sentence terminator in
// runes[from:to] that is followed by a space, or 0 if there is none.
func sentenceCut(runes []rune, from, to int) int {
	for i := to - 1; i >= from; i-- {
		switch runes[i] {
		case '.', '!', '?':
			if i+1 < len(runes) && runes[i+1] == ' ' {
				return i + 1
			}
		}
	}
	return 0
}

// NormalizeWhitespace collapses whitespace runs into single spaces and trims the ends.
func NormalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Reassemble rebuilds the normalized text from chunks by dropping each overlap.
func Reassemble(chunks []Chunk) string {
	var b strings.Builder
	covered := 0
	for _, ch := range chunks {
		runes := []rune(ch.Text)
		skip := covered - ch.Span.Start
		if skip < 0 {
			skip = 0
		}
		if skip < len(runes) {
			b.WriteString(string(runes[skip:]))
		}
		if ch.Span.End > covered {
			covered = ch.Span.End
		}
	}
	return b.String()
}
