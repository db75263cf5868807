package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ErrBadStatus matches every StatusError.
var ErrBadStatus = errors.New("bad upstream status")

// maxErrorBody caps how much of an error response ends up in the error text.
const maxErrorBody = 512

// StatusError is a non-200 response from an OpenAI-compatible endpoint.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned %d: %s", e.Code, e.Body)
}

func (e *StatusError) Unwrap() error { return ErrBadStatus }

// Retryable reports whether the request may succeed when repeated.
func (e *StatusError) Retryable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= http.StatusInternalServerError
}

// endpoint is the shared JSON-over-HTTP plumbing of the API clients.
type endpoint struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func (e endpoint) url(path string) string {
	return strings.TrimRight(e.baseURL, "/") + path
}

// postJSON sends in as JSON to path and decodes a 200 response into out.
func (e endpoint) postJSON(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url(path), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return e.do(req, out)
}

// getJSON fetches path and decodes a 200 response into out.
func (e endpoint) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.url(path), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return e.do(req, out)
}

func (e endpoint) do(req *http.Request, out any) error {
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}
	resp, err := e.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", req.URL.Path, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", req.URL.Path, err)
	}
	return nil
}
