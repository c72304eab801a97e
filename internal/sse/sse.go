// Package sse relays upstream token streams to HTTP clients as
// Server-Sent Events.
package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"dcia/internal/ollama"
)

// DoneSentinel terminates every successful stream.
const DoneSentinel = "[DONE]"

// Writer emits SSE frames and flushes after each one.
type Writer struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewWriter sets the event-stream headers and returns a Writer, or an
// error when the underlying ResponseWriter cannot flush.
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming unsupported by response writer")
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	return &Writer{w: w, flusher: flusher}, nil
}

// Token emits a data frame carrying one generated token.
func (s *Writer) Token(token string) error {
	return s.Event(map[string]string{"token": token})
}

// Error emits a terminal error frame.
func (s *Writer) Error(msg string) error {
	return s.Event(map[string]string{"error": msg})
}

// Done emits the terminal sentinel frame.
func (s *Writer) Done() error {
	return s.raw(DoneSentinel)
}

// Event emits an arbitrary JSON payload as a data frame.
func (s *Writer) Event(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.raw(string(data))
}

func (s *Writer) raw(data string) error {
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// Relay forwards tokens to the client in order and terminates the stream
// with exactly one sentinel or error frame. A cancelled context (client
// disconnect) stops the relay without writing further frames.
func Relay(ctx context.Context, s *Writer, tokens <-chan ollama.Token) {
	for {
		select {
		case <-ctx.Done():
			return
		case tok, ok := <-tokens:
			if !ok {
				_ = s.Done()
				return
			}
			if tok.Err != nil {
				_ = s.Error(tok.Err.Error())
				return
			}
			if err := s.Token(tok.Content); err != nil {
				return
			}
		}
	}
}
