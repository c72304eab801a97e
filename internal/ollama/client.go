// Package ollama wraps the Ollama HTTP API with retries, a circuit
// breaker, and token streaming.
package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"dcia/internal/breaker"
	"dcia/internal/retry"
)

var (
	// ErrCircuitOpen is returned when the breaker rejects the call.
	ErrCircuitOpen = errors.New("circuit breaker open")

	// ErrUnavailable is returned when all retry attempts failed.
	ErrUnavailable = errors.New("ollama unavailable")

	// ErrEmptyPrompt is returned for a blank prompt.
	ErrEmptyPrompt = errors.New("prompt cannot be empty")
)

const (
	healthTimeout = 5 * time.Second
	tagsTimeout   = 10 * time.Second
	maxRetryDelay = 30 * time.Second

	// Streamed lines are small JSON objects, but keep headroom for
	// models that emit large single chunks.
	scannerBuffer = 1 << 20
)

// Options configures a Client.
type Options struct {
	BaseURL    string
	Model      string // default model when a request names none
	Timeout    time.Duration
	MaxRetries int
	BaseDelay  time.Duration
	Breaker    *breaker.Breaker
	Logger     *slog.Logger
}

// Client talks to Ollama's /api/generate and /api/tags endpoints.
type Client struct {
	baseURL    string
	model      string
	maxRetries int
	baseDelay  time.Duration
	breaker    *breaker.Breaker
	httpClient *http.Client
	// streamClient has no global timeout: a fixed deadline would race
	// with generations that legitimately run for minutes. Streaming
	// calls are bounded by the request context instead.
	streamClient *http.Client
	log          *slog.Logger
}

// NewClient builds a client. The HTTP client carries the overall call
// timeout for non-streaming requests; streaming requests rely on the
// request context instead, since generation can legitimately run long.
func NewClient(opts Options) *Client {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Client{
		baseURL:      strings.TrimRight(opts.BaseURL, "/"),
		model:        opts.Model,
		maxRetries:   opts.MaxRetries,
		baseDelay:    opts.BaseDelay,
		breaker:      opts.Breaker,
		httpClient:   &http.Client{Timeout: opts.Timeout},
		streamClient: &http.Client{},
		log:          opts.Logger.With("component", "ollama"),
	}
}

type generatePayload struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	System  string          `json:"system,omitempty"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

func (c *Client) payload(req GenerateRequest, stream bool) generatePayload {
	model := req.Model
	if model == "" {
		model = c.model
	}
	return generatePayload{
		Model:  model,
		Prompt: req.Prompt,
		System: req.System,
		Stream: stream,
		Options: generateOptions{
			Temperature: req.Temperature,
			TopP:        req.TopP,
		},
	}
}

// Generate performs a non-streaming call with retries and exponential
// backoff. The breaker is consulted before every attempt; a denial aborts
// the whole call. One breaker outcome is recorded per logical call, and a
// cancelled call records none since it says nothing about upstream health.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return "", ErrEmptyPrompt
	}

	payload := c.payload(req, false)
	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if !c.breaker.Allow() {
			c.log.Warn("circuit breaker open, aborting call", "attempt", attempt)
			return "", ErrCircuitOpen
		}
		trial := c.breaker.State() == breaker.StateHalfOpen

		text, err := c.generateOnce(ctx, payload)
		if err == nil {
			c.breaker.RecordSuccess()
			return text, nil
		}
		lastErr = err
		c.log.Warn("generate attempt failed",
			"attempt", attempt+1, "max_retries", c.maxRetries, "err", err)

		if ctx.Err() != nil {
			return "", fmt.Errorf("generate: %w", ctx.Err())
		}
		if trial {
			// A failed trial must reopen the breaker itself; retrying
			// would only be denied while the trial stays unresolved.
			c.breaker.RecordFailure()
			return "", fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
		}
		if attempt < c.maxRetries-1 {
			delay := retry.CappedBackoff(attempt, c.baseDelay, maxRetryDelay)
			if err := sleep(ctx, delay); err != nil {
				return "", fmt.Errorf("generate: %w", err)
			}
		}
	}

	c.breaker.RecordFailure()
	return "", fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

func (c *Client) generateOnce(ctx context.Context, payload generatePayload) (string, error) {
	resp, err := c.post(ctx, payload)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama returned status %d", resp.StatusCode)
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	text := strings.TrimSpace(out.Response)
	if text == "" {
		return "", fmt.Errorf("empty response from ollama")
	}
	return text, nil
}

// GenerateStream establishes a streaming call, retrying the connection
// setup only. Once tokens are flowing the stream is not resumable:
// mid-stream errors are delivered on the channel and end it. The breaker
// outcome is recorded at establish time.
func (c *Client) GenerateStream(ctx context.Context, req GenerateRequest) (<-chan Token, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, ErrEmptyPrompt
	}

	payload := c.payload(req, true)
	var resp *http.Response
	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if !c.breaker.Allow() {
			return nil, ErrCircuitOpen
		}
		trial := c.breaker.State() == breaker.StateHalfOpen

		r, err := c.post(ctx, payload)
		if err == nil && r.StatusCode == http.StatusOK {
			resp = r
			break
		}
		if err == nil {
			lastErr = fmt.Errorf("ollama returned status %d", r.StatusCode)
			r.Body.Close()
		} else {
			lastErr = err
		}
		c.log.Warn("stream connect attempt failed",
			"attempt", attempt+1, "max_retries", c.maxRetries, "err", lastErr)

		if ctx.Err() != nil {
			return nil, fmt.Errorf("generate stream: %w", ctx.Err())
		}
		if trial {
			c.breaker.RecordFailure()
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
		}
		if attempt < c.maxRetries-1 {
			if err := sleep(ctx, retry.CappedBackoff(attempt, c.baseDelay, maxRetryDelay)); err != nil {
				return nil, fmt.Errorf("generate stream: %w", err)
			}
		}
	}
	if resp == nil {
		c.breaker.RecordFailure()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
	}

	c.breaker.RecordSuccess()
	tokens := make(chan Token)
	go c.readStream(ctx, resp.Body, tokens)
	return tokens, nil
}

// readStream parses Ollama's NDJSON lines and forwards tokens until the
// final done marker, an error, or context cancellation.
func (c *Client) readStream(ctx context.Context, body io.ReadCloser, tokens chan<- Token) {
	defer close(tokens)
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), scannerBuffer)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var chunk generateResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			c.send(ctx, tokens, Token{Err: fmt.Errorf("decode stream chunk: %w", err)})
			return
		}
		if chunk.Response != "" {
			if !c.send(ctx, tokens, Token{Content: chunk.Response}) {
				return
			}
		}
		if chunk.Done {
			return
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		c.send(ctx, tokens, Token{Err: fmt.Errorf("read stream: %w", err)})
	}
}

func (c *Client) send(ctx context.Context, tokens chan<- Token, tok Token) bool {
	select {
	case tokens <- tok:
		return true
	case <-ctx.Done():
		return false
	}
}

func (c *Client) post(ctx context.Context, payload generatePayload) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if payload.Stream {
		return c.streamClient.Do(httpReq)
	}
	return c.httpClient.Do(httpReq)
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// ListModels fetches the available model names, deduplicated in order.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, tagsTimeout)
	defer cancel()

	resp, err := c.getTags(ctx)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama returned status %d", resp.StatusCode)
	}

	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}

	seen := make(map[string]bool, len(tags.Models))
	var names []string
	for _, m := range tags.Models {
		name := strings.TrimSpace(m.Name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names, nil
}

// Health reports whether the upstream server answers /api/tags.
func (c *Client) Health(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	resp, err := c.getTags(ctx)
	if err != nil {
		c.log.Error("health check failed", "err", err)
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (c *Client) getTags(ctx context.Context) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	return c.httpClient.Do(req)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
