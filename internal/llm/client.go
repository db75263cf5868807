package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/em-ech/siftopsv1-sub000/internal/contextutil"
)

// ErrCircuitOpen is returned while the generation breaker rejects calls.
var ErrCircuitOpen = errors.New("generation circuit open")

// Chat roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a chat completion request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatParams overrides per-call completion settings. Zero values keep the
// client model and the server defaults.
type ChatParams struct {
	Model       string
	MaxTokens   int
	Temperature *float32
}

// ClientOptions tunes rate limiting and circuit breaking.
type ClientOptions struct {
	RequestsPerSecond float64
	Burst             int
	// Consecutive failures before the breaker opens.
	TripAfter uint32
	// How long the breaker stays open before a probe call is let through.
	OpenTimeout time.Duration
}

// DefaultClientOptions fill any zero field of ClientOptions.
var DefaultClientOptions = ClientOptions{RequestsPerSecond: 2, Burst: 4, TripAfter: 5, OpenTimeout: 30 * time.Second}

func (o ClientOptions) withDefaults() ClientOptions {
	if o.RequestsPerSecond <= 0 {
		o.RequestsPerSecond = DefaultClientOptions.RequestsPerSecond
	}
	if o.Burst <= 0 {
		o.Burst = DefaultClientOptions.Burst
	}
	if o.TripAfter == 0 {
		o.TripAfter = DefaultClientOptions.TripAfter
	}
	if o.OpenTimeout <= 0 {
		o.OpenTimeout = DefaultClientOptions.OpenTimeout
	}
	return o
}

// Client talks to an OpenAI-compatible /v1/chat/completions endpoint.
// Generation is not idempotent and is never retried; instead calls are
// rate limited and guarded by a circuit breaker.
type Client struct {
	Model   string
	api     endpoint
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

// NewClient creates a chat client with DefaultClientOptions.
func NewClient(baseURL, apiKey, model string) *Client {
	return NewClientWithOptions(baseURL, apiKey, model, ClientOptions{})
}

// NewClientWithOptions creates a chat client.
func NewClientWithOptions(baseURL, apiKey, model string, opts ClientOptions) *Client {
	opts = opts.withDefaults()
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "chat-completions",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     opts.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.TripAfter
		},
		IsSuccessful: func(err error) bool {
			// Caller cancellation says nothing about upstream health.
			return err == nil || errors.Is(err, context.Canceled)
		},
	})

	return &Client{
		Model:   model,
		api:     endpoint{baseURL: baseURL, apiKey: apiKey, http: &http.Client{Timeout: 2 * time.Minute}},
		limiter: rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), opts.Burst),
		breaker: breaker,
	}
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature *float32  `json:"temperature,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
}

// Generate sends a system and user message pair and returns the reply.
// Temperature is pinned to 0 so grounded answers stay reproducible.
func (c *Client) Generate(ctx context.Context, system, user string) (string, error) {
	var zero float32
	return c.Chat(ctx, []Message{
		{Role: RoleSystem, Content: system},
		{Role: RoleUser, Content: user},
	}, ChatParams{Temperature: &zero})
}

// Chat runs one chat completion.
func (c *Client) Chat(ctx context.Context, messages []Message, params ChatParams) (string, error) {
	logger := contextutil.LoggerFromContext(ctx)

	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("failed to wait for rate limiter: %w", err)
	}

	model := params.Model
	if model == "" {
		model = c.Model
	}
	req := chatRequest{Model: model, Messages: messages, MaxTokens: params.MaxTokens, Temperature: params.Temperature}

	start := time.Now()
	out, err := c.breaker.Execute(func() (interface{}, error) {
		var resp chatResponse
		if err := c.api.postJSON(ctx, "/v1/chat/completions", req, &resp); err != nil {
			return nil, err
		}
		if len(resp.Choices) == 0 {
			return nil, fmt.Errorf("chat completion returned no choices")
		}
		if reason := resp.Choices[0].FinishReason; reason == "length" {
			logger.WarnContext(ctx, "chat completion truncated", "model", model)
		}
		return resp.Choices[0].Message.Content, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		logger.WarnContext(ctx, "chat completion rejected by circuit breaker", "state", c.breaker.State().String())
		return "", ErrCircuitOpen
	}
	if err != nil {
		return "", err
	}

	logger.DebugContext(ctx, "chat completion finished", "model", model, "duration_ms", time.Since(start).Milliseconds())
	return out.(string), nil
}

// BreakerState reports the circuit breaker state for health checks.
func (c *Client) BreakerState() string {
	return c.breaker.State().String()
}
