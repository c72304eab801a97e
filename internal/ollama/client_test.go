package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dcia/internal/breaker"
)

func testClient(t *testing.T, baseURL string, maxRetries int) *Client {
	t.Helper()
	return NewClient(Options{
		BaseURL:    baseURL,
		Model:      "test-model",
		Timeout:    5 * time.Second,
		MaxRetries: maxRetries,
		BaseDelay:  time.Millisecond,
		Breaker:    breaker.New(10, time.Minute),
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func TestGenerateSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/generate", r.URL.Path)

		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "test-model", payload["model"])
		assert.Equal(t, false, payload["stream"])

		json.NewEncoder(w).Encode(map[string]any{"response": " Bonjour ", "done": true})
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, 3)
	text, err := c.Generate(context.Background(), GenerateRequest{Prompt: "hello", Temperature: 0.3, TopP: 0.9})
	require.NoError(t, err)
	assert.Equal(t, "Bonjour", text)
}

func TestGenerateEmptyPrompt(t *testing.T) {
	c := testClient(t, "http://unused", 3)
	_, err := c.Generate(context.Background(), GenerateRequest{Prompt: "   "})
	assert.ErrorIs(t, err, ErrEmptyPrompt)
}

func TestGenerateRetriesUpToMax(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, 3)
	_, err := c.Generate(context.Background(), GenerateRequest{Prompt: "hello"})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, int64(3), calls.Load(), "retry count must not exceed the configured maximum")
}

func TestGenerateRecoversAfterTransientFailure(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"response": "ok", "done": true})
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, 3)
	text, err := c.Generate(context.Background(), GenerateRequest{Prompt: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
}

func TestGenerateEmptyResponseIsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"response": "", "done": true})
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, 2)
	_, err := c.Generate(context.Background(), GenerateRequest{Prompt: "hello"})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestGenerateAbortsWhenBreakerOpens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request should reach the upstream while the breaker is open")
	}))
	defer srv.Close()

	b := breaker.New(1, time.Minute)
	b.RecordFailure() // breaker now open

	c := NewClient(Options{
		BaseURL:    srv.URL,
		MaxRetries: 3,
		BaseDelay:  time.Millisecond,
		Breaker:    b,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	_, err := c.Generate(context.Background(), GenerateRequest{Prompt: "hello"})
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestGenerateOpensBreakerAfterConsecutiveCallFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	b := breaker.New(2, time.Minute)
	c := NewClient(Options{
		BaseURL:    srv.URL,
		MaxRetries: 1,
		BaseDelay:  time.Millisecond,
		Breaker:    b,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	for i := 0; i < 2; i++ {
		_, err := c.Generate(context.Background(), GenerateRequest{Prompt: "hello"})
		assert.ErrorIs(t, err, ErrUnavailable)
	}

	// Third call is rejected outright.
	_, err := c.Generate(context.Background(), GenerateRequest{Prompt: "hello"})
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestGenerateFailedTrialReopensBreaker(t *testing.T) {
	var healthy atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !healthy.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"response": "ok", "done": true})
	}))
	defer srv.Close()

	cooldown := 20 * time.Millisecond
	b := breaker.New(1, cooldown)
	c := NewClient(Options{
		BaseURL:    srv.URL,
		MaxRetries: 3,
		BaseDelay:  time.Millisecond,
		Breaker:    b,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	_, err := c.Generate(context.Background(), GenerateRequest{Prompt: "hello"})
	require.ErrorIs(t, err, ErrUnavailable)
	require.Equal(t, breaker.StateOpen, b.State())

	// The cooldown admits a trial; its failure must reopen the breaker,
	// not leave it stuck half-open rejecting every future call.
	time.Sleep(2 * cooldown)
	_, err = c.Generate(context.Background(), GenerateRequest{Prompt: "hello"})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, breaker.StateOpen, b.State())

	// Once the upstream recovers, the next trial closes the breaker.
	healthy.Store(true)
	time.Sleep(2 * cooldown)
	text, err := c.Generate(context.Background(), GenerateRequest{Prompt: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, breaker.StateClosed, b.State())
}

func TestGenerateCancelledCallRecordsNoBreakerOutcome(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Healthy but slow upstream: only the client gives up.
		<-r.Context().Done()
	}))
	defer srv.Close()

	b := breaker.New(1, time.Minute)
	c := NewClient(Options{
		BaseURL:    srv.URL,
		MaxRetries: 3,
		BaseDelay:  time.Millisecond,
		Breaker:    b,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.Generate(ctx, GenerateRequest{Prompt: "hello"})
	require.Error(t, err)
	assert.Equal(t, breaker.StateClosed, b.State(),
		"a disconnecting client must not count against the breaker")
}

func TestGenerateStreamDeliversTokensInOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, true, payload["stream"])

		flusher := w.(http.Flusher)
		for _, tok := range []string{"Bon", "jour"} {
			fmt.Fprintf(w, `{"response":%q,"done":false}`+"\n", tok)
			flusher.Flush()
		}
		fmt.Fprintln(w, `{"response":"","done":true}`)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, 3)
	tokens, err := c.GenerateStream(context.Background(), GenerateRequest{Prompt: "hello"})
	require.NoError(t, err)

	var got []string
	for tok := range tokens {
		require.NoError(t, tok.Err)
		got = append(got, tok.Content)
	}
	assert.Equal(t, []string{"Bon", "jour"}, got)
}

func TestGenerateStreamMidStreamErrorIsTerminal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"response":"ok","done":false}`)
		fmt.Fprintln(w, `not json at all`)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, 3)
	tokens, err := c.GenerateStream(context.Background(), GenerateRequest{Prompt: "hello"})
	require.NoError(t, err)

	first := <-tokens
	require.NoError(t, first.Err)
	assert.Equal(t, "ok", first.Content)

	second := <-tokens
	assert.Error(t, second.Err)

	_, open := <-tokens
	assert.False(t, open, "channel must close after the error token")
}

func TestGenerateStreamConnectFailureRecordsBreakerFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	b := breaker.New(1, time.Minute)
	c := NewClient(Options{
		BaseURL:    srv.URL,
		MaxRetries: 2,
		BaseDelay:  time.Millisecond,
		Breaker:    b,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	_, err := c.GenerateStream(context.Background(), GenerateRequest{Prompt: "hello"})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, breaker.StateOpen, b.State())
}

func TestGenerateStreamFailedTrialReopensBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cooldown := 20 * time.Millisecond
	b := breaker.New(1, cooldown)
	c := NewClient(Options{
		BaseURL:    srv.URL,
		MaxRetries: 2,
		BaseDelay:  time.Millisecond,
		Breaker:    b,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	_, err := c.GenerateStream(context.Background(), GenerateRequest{Prompt: "hello"})
	require.ErrorIs(t, err, ErrUnavailable)
	require.Equal(t, breaker.StateOpen, b.State())

	time.Sleep(2 * cooldown)
	_, err = c.GenerateStream(context.Background(), GenerateRequest{Prompt: "hello"})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, breaker.StateOpen, b.State(), "failed trial must reopen, not latch half-open")
}

func TestGenerateStreamCancelledConnectRecordsNoBreakerOutcome(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	b := breaker.New(1, time.Minute)
	c := NewClient(Options{
		BaseURL:    srv.URL,
		MaxRetries: 3,
		BaseDelay:  time.Millisecond,
		Breaker:    b,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.GenerateStream(ctx, GenerateRequest{Prompt: "hello"})
	require.Error(t, err)
	assert.Equal(t, breaker.StateClosed, b.State())
}

func TestListModelsDeduplicates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/tags", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"models": []map[string]string{
				{"name": "mistral-small:latest"},
				{"name": "llama3.2:latest"},
				{"name": "mistral-small:latest"},
				{"name": ""},
			},
		})
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, 3)
	models, err := c.ListModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"mistral-small:latest", "llama3.2:latest"}, models)
}

func TestHealth(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer healthy.Close()

	c := testClient(t, healthy.URL, 3)
	assert.True(t, c.Health(context.Background()))

	down := testClient(t, "http://127.0.0.1:1", 3)
	assert.False(t, down.Health(context.Background()))
}
