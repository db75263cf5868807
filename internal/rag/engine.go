package rag

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_generator.go -package=mocks github.com/em-ech/siftopsv1-sub000/internal/rag Generator
//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_engine.go -package=mocks github.com/em-ech/siftopsv1-sub000/internal/rag Engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/em-ech/siftopsv1-sub000/internal/bundle"
	"github.com/em-ech/siftopsv1-sub000/internal/contextutil"
	"github.com/em-ech/siftopsv1-sub000/internal/retrieval"
	"github.com/em-ech/siftopsv1-sub000/internal/service"
	"github.com/em-ech/siftopsv1-sub000/internal/storage"
)

// DefaultGenerationTimeout bounds one generation call.
const DefaultGenerationTimeout = 60 * time.Second

// Generator produces text from a system and user prompt.
type Generator interface {
	Generate(ctx context.Context, system, user string) (string, error)
}

// BundleReader loads evidence bundles.
type BundleReader interface {
	Get(ctx context.Context, tenantID, id string) (*bundle.Bundle, error)
}

// ChunkLister lists the indexed chunks of a document.
type ChunkLister interface {
	ListByDocument(ctx context.Context, tenantID, documentID string) ([]*storage.ChunkRecord, error)
}

// Engine answers questions from locked evidence bundles.
type Engine interface {
	// Ask synthesizes an answer from the bundle's documents, citing them by marker.
	Ask(ctx context.Context, req AskRequest) (*Answer, error)
}

// Options tunes the engine. Zero values take defaults.
type Options struct {
	GenerationTimeout time.Duration
	MaxEvidenceRunes  int
}

// ragEngine implements the Engine interface.
type ragEngine struct {
	bundles   BundleReader
	docs      storage.DocumentStore
	chunks    ChunkLister
	generator Generator
	opts      Options
}

// NewEngine creates a new grounded answer engine.
func NewEngine(bundles BundleReader, docs storage.DocumentStore, chunks ChunkLister, generator Generator, opts Options) Engine {
	if opts.GenerationTimeout <= 0 {
		opts.GenerationTimeout = DefaultGenerationTimeout
	}
	if opts.MaxEvidenceRunes <= 0 {
		opts.MaxEvidenceRunes = DefaultMaxEvidenceRunes
	}
	return &ragEngine{bundles: bundles, docs: docs, chunks: chunks, generator: generator, opts: opts}
}

// Ask answers a question using only the documents of a locked bundle.
// An open bundle is refused before any generation call. A locked bundle
// with no usable text, and a generator reply that is empty or declines,
// both yield NotFoundSentinel with no citations.
func (e *ragEngine) Ask(ctx context.Context, req AskRequest) (*Answer, error) {
	ctx = contextutil.WithAttrs(ctx, "bundle_id", req.BundleID)
	logger := contextutil.LoggerFromContext(ctx)

	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, &service.ValidationError{Field: "question", Message: "cannot be empty"}
	}

	b, err := e.bundles.Get(ctx, req.TenantID, req.BundleID)
	if err != nil {
		return nil, fmt.Errorf("failed to load bundle: %w", err)
	}
	if !b.Locked {
		return nil, fmt.Errorf("%w: bundle %s must be locked before asking", service.ErrInvalidState, b.ID)
	}

	evidence, err := e.collectEvidence(ctx, b, question)
	if err != nil {
		return nil, err
	}
	if len(evidence) == 0 {
		logger.InfoContext(ctx, "no evidence to answer from",
			"members", len(b.Members),
			"reason", service.ErrEvidenceInsufficient,
		)
		return notFound(b.ID, 0), nil
	}

	system, user := buildPrompt(question, evidence)
	logger.InfoContext(ctx, "sending grounded question to generator",
		"evidence", len(evidence),
		"prompt_length", len(user),
	)

	gctx, cancel := context.WithTimeout(ctx, e.opts.GenerationTimeout)
	defer cancel()
	start := time.Now()
	reply, err := e.generator.Generate(gctx, system, user)
	if err != nil {
		logger.ErrorContext(ctx, "generation failed", "duration_ms", time.Since(start).Milliseconds(), "error", err)
		return nil, service.Upstream("generate answer", err)
	}

	reply = strings.TrimSpace(reply)
	if reply == "" || strings.Contains(reply, NotFoundSentinel) {
		logger.InfoContext(ctx, "generator found no answer in evidence")
		return notFound(b.ID, len(evidence)), nil
	}

	citations := ExtractCitations(reply, evidence)
	if len(citations) == 0 {
		logger.WarnContext(ctx, "answer carries no usable citations")
	}
	logger.InfoContext(ctx, "grounded answer completed",
		"answer_length", len(reply),
		"citations", len(citations),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return &Answer{
		BundleID:      b.ID,
		Answer:        reply,
		Found:         true,
		Citations:     citations,
		EvidenceCount: len(evidence),
	}, nil
}

// collectEvidence resolves members in bundle order. Members whose document
// is gone or has no text are skipped; markers stay dense. Each member
// contributes the chunks that best match the question, within the rune budget.
func (e *ragEngine) collectEvidence(ctx context.Context, b *bundle.Bundle, question string) ([]Evidence, error) {
	if len(b.Members) == 0 {
		return nil, nil
	}
	docs, err := e.docs.GetMany(ctx, b.TenantID, b.Members)
	if err != nil {
		return nil, fmt.Errorf("failed to load bundle documents: %w", err)
	}

	terms := retrieval.Terms(question, maxQuestionTerms)
	evidence := make([]Evidence, 0, len(b.Members))
	for _, id := range b.Members {
		doc, ok := docs[id]
		if !ok {
			contextutil.LoggerFromContext(ctx).WarnContext(ctx, "bundle member no longer exists", "document_id", id)
			continue
		}
		chunks, err := e.chunks.ListByDocument(ctx, b.TenantID, id)
		if err != nil {
			return nil, fmt.Errorf("failed to load chunks for %s: %w", id, err)
		}
		texts := make([]string, 0, len(chunks))
		for _, c := range chunks {
			texts = append(texts, c.Text)
		}
		if len(texts) == 0 {
			texts = append(texts, doc.Text)
		}
		text, lead := selectPassages(texts, terms, e.opts.MaxEvidenceRunes)
		if text == "" {
			continue
		}
		evidence = append(evidence, Evidence{
			Marker:     markerFor(len(evidence)),
			DocumentID: doc.ExternalID,
			Title:      doc.Title,
			URL:        doc.URL,
			SourceID:   doc.SourceID,
			Text:       text,
			Lead:       lead,
		})
	}
	return evidence, nil
}
