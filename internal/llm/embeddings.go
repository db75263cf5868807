package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/em-ech/siftopsv1-sub000/internal/contextutil"
)

// DefaultEmbeddingBatch is the number of inputs sent per embeddings request.
const DefaultEmbeddingBatch = 64

// EmbeddingsClient calls an OpenAI-compatible /v1/embeddings endpoint.
// Requests are idempotent, so transient failures are retried.
type EmbeddingsClient struct {
	Model string
	// Dim is checked against every returned vector; 0 disables the check.
	Dim       int
	BatchSize int
	Retry     RetryPolicy
	api       endpoint
}

// NewEmbeddingsClient creates an embeddings client producing dim-sized vectors.
func NewEmbeddingsClient(baseURL, apiKey, model string, dim int) *EmbeddingsClient {
	return &EmbeddingsClient{
		Model:     model,
		Dim:       dim,
		BatchSize: DefaultEmbeddingBatch,
		Retry:     DefaultRetryPolicy,
		api:       endpoint{baseURL: baseURL, apiKey: apiKey, http: &http.Client{Timeout: 30 * time.Second}},
	}
}

type embeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingsResponse struct {
	Data []struct {
		Index     *int      `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// errShapeMismatch marks a well-formed reply that does not fit the request.
var errShapeMismatch = errors.New("embedding response does not match request")

// EmbedTexts returns one vector per text, in input order.
func (c *EmbeddingsClient) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("no texts to embed")
	}
	size := c.BatchSize
	if size <= 0 {
		size = DefaultEmbeddingBatch
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += size {
		batch := texts[start:min(start+size, len(texts))]
		vecs, err := c.embedBatch(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("failed to embed texts %d-%d of %d: %w", start, start+len(batch)-1, len(texts), err)
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (c *EmbeddingsClient) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
	logger := contextutil.LoggerFromContext(ctx)
	attempt := 0
	return Retry(ctx, c.Retry, func() ([][]float32, error) {
		attempt++
		var resp embeddingsResponse
		if err := c.api.postJSON(ctx, "/v1/embeddings", embeddingsRequest{Model: c.Model, Input: batch}, &resp); err != nil {
			logger.DebugContext(ctx, "embedding request failed", "attempt", attempt, "batch", len(batch), "error", err)
			return nil, err
		}
		vecs, err := c.collect(resp, len(batch))
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		return vecs, nil
	})
}

// collect places vectors by their reported index, falling back to position
// for servers that omit it, and checks dimensions.
func (c *EmbeddingsClient) collect(resp embeddingsResponse, want int) ([][]float32, error) {
	if len(resp.Data) != want {
		return nil, fmt.Errorf("%w: %d inputs, %d embeddings", errShapeMismatch, want, len(resp.Data))
	}
	vecs := make([][]float32, want)
	for pos, d := range resp.Data {
		idx := pos
		if d.Index != nil {
			idx = *d.Index
		}
		if idx < 0 || idx >= want || vecs[idx] != nil {
			return nil, fmt.Errorf("%w: bad index %d", errShapeMismatch, idx)
		}
		if c.Dim > 0 && len(d.Embedding) != c.Dim {
			return nil, fmt.Errorf("%w: embedding %d has %d dimensions, want %d", errShapeMismatch, idx, len(d.Embedding), c.Dim)
		}
		vec := make([]float32, len(d.Embedding))
		for i, v := range d.Embedding {
			vec[i] = float32(v)
		}
		vecs[idx] = vec
	}
	return vecs, nil
}
