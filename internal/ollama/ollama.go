package ollama

import "context"

// Token is one chunk of a streamed generation. A non-nil Err terminates
// the stream; the channel is closed after it.
type Token struct {
	Content string
	Err     error
}

// GenerateRequest describes a single generation call.
type GenerateRequest struct {
	Model       string
	Prompt      string
	System      string
	Temperature float64
	TopP        float64
}

// Generator is the LLM interface handlers depend on, kept minimal so
// tests can swap in a mock.
type Generator interface {
	// Generate performs a non-streaming call and returns the full response.
	Generate(ctx context.Context, req GenerateRequest) (string, error)

	// GenerateStream starts a streaming call. The returned channel yields
	// tokens in generation order and is closed when the stream ends.
	// Establishing the stream may fail; mid-stream failures are delivered
	// as a Token with Err set.
	GenerateStream(ctx context.Context, req GenerateRequest) (<-chan Token, error)

	// ListModels returns the model names available upstream.
	ListModels(ctx context.Context) ([]string, error)

	// Health reports whether the upstream server responds.
	Health(ctx context.Context) bool
}
