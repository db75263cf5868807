package indexer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"unicode/utf8"

	"github.com/em-ech/siftopsv1-sub000/internal/storage"
)

const (
	// ChunkerVersion identifies the chunking algorithm.
	// Bump it when chunk boundaries would change for the same input.
	ChunkerVersion = "v2.0"
	// TokensPerRune is an approximation for token counting (4 chars per token).
	TokensPerRune = 4.0
)

// CorpusCounter reports stored row counts for a tenant.
type CorpusCounter interface {
	Counts(ctx context.Context, tenantID string) (*storage.CorpusCounts, error)
}

// ChunkTextLister lists stored chunk texts for a tenant.
type ChunkTextLister interface {
	ChunkTexts(ctx context.Context, tenantID string) ([]string, error)
}

// CoverageStats describes what is indexed for one tenant.
type CoverageStats struct {
	Documents         int             `json:"documents"`
	DocumentsNoChunks int             `json:"documents_no_chunks"`
	Chunks            int             `json:"chunks"`
	Directives        int             `json:"directives"`
	Bundles           int             `json:"bundles"`
	ChunkTokenStats   ChunkTokenStats `json:"chunk_token_stats"`
	ChunkerVersion    string          `json:"chunker_version"`
	// IndexVersion is a hash of chunker version, embedding model, and chunking parameters.
	IndexVersion string `json:"index_version"`
}

// ChunkTokenStats contains statistics about token counts in chunks.
type ChunkTokenStats struct {
	Min  int     `json:"min"`
	Max  int     `json:"max"`
	Mean float64 `json:"mean"`
	P95  int     `json:"p95"`
}

// StatsReporter computes CoverageStats from the stores.
type StatsReporter struct {
	counter        CorpusCounter
	texts          ChunkTextLister
	chunker        *Chunker
	embeddingModel string
}

// NewStatsReporter creates a StatsReporter.
func NewStatsReporter(counter CorpusCounter, texts ChunkTextLister, chunker *Chunker, embeddingModel string) *StatsReporter {
	return &StatsReporter{counter: counter, texts: texts, chunker: chunker, embeddingModel: embeddingModel}
}

// Stats computes coverage statistics for tenantID.
func (r *StatsReporter) Stats(ctx context.Context, tenantID string) (*CoverageStats, error) {
	counts, err := r.counter.Counts(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to count corpus: %w", err)
	}

	texts, err := r.texts.ChunkTexts(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to get chunks: %w", err)
	}

	tokenCounts := make([]int, 0, len(texts))
	for _, text := range texts {
		tokenCount := int(math.Round(float64(utf8.RuneCountInString(text)) / TokensPerRune))
		if tokenCount < 1 {
			tokenCount = 1
		}
		tokenCounts = append(tokenCounts, tokenCount)
	}

	return &CoverageStats{
		Documents:         counts.Documents,
		DocumentsNoChunks: counts.DocumentsNoChunks,
		Chunks:            counts.Chunks,
		Directives:        counts.Directives,
		Bundles:           counts.Bundles,
		ChunkTokenStats:   computeTokenStats(tokenCounts),
		ChunkerVersion:    ChunkerVersion,
		IndexVersion:      indexVersion(r.embeddingModel, r.chunker),
	}, nil
}

func indexVersion(embeddingModel string, chunker *Chunker) string {
	input := fmt.Sprintf("%s|%s|size=%d|overlap=%d", ChunkerVersion, embeddingModel, chunker.Size(), chunker.Overlap())
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:])[:16]
}

// computeTokenStats computes min, max, mean, and p95 from token counts.
func computeTokenStats(tokenCounts []int) ChunkTokenStats {
	if len(tokenCounts) == 0 {
		return ChunkTokenStats{}
	}

	sorted := make([]int, len(tokenCounts))
	copy(sorted, tokenCounts)
	sort.Ints(sorted)

	sum := 0
	for _, count := range sorted {
		sum += count
	}
	mean := float64(sum) / float64(len(sorted))

	p95Index := int(math.Ceil(float64(len(sorted))*0.95)) - 1
	if p95Index < 0 {
		p95Index = 0
	}

	return ChunkTokenStats{
		Min:  sorted[0],
		Max:  sorted[len(sorted)-1],
		Mean: math.Round(mean*100) / 100,
		P95:  sorted[p95Index],
	}
}
