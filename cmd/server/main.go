package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"dcia/internal/app"
	"dcia/internal/httputil"
	"dcia/internal/ollama"
	"dcia/internal/prompt"
)

func main() {
	deps, err := app.Build()
	if err != nil {
		slog.Default().Error("failed to build dependencies", "err", err)
		os.Exit(1)
	}
	defer deps.Cache.Close()

	r := newRouter(deps)

	addr := fmt.Sprintf(":%d", deps.Config.Port)
	deps.Log.Info("server listening", "addr", addr, "ollama_url", deps.Config.OllamaBaseURL)
	if err := http.ListenAndServe(addr, r); err != nil {
		deps.Log.Error("server failed", "err", err)
	}
}

func newRouter(deps app.Deps) http.Handler {
	r := httputil.NewRouter(deps.Log)

	r.Get("/", indexHandler(deps))
	r.Get("/healthz", healthHandler(deps))
	r.Get("/metrics", deps.Metrics.Handler())
	r.Get("/models", modelsHandler(deps))

	r.Post("/translate-text", translateTextHandler(deps))
	r.Post("/translate-text-stream", translateTextStreamHandler(deps))
	r.Post("/correct-text", correctTextHandler(deps))
	r.Post("/correct-text-stream", correctTextStreamHandler(deps))
	r.Post("/reformulate-text", reformulateTextHandler(deps))
	r.Post("/reformulate-text-stream", reformulateTextStreamHandler(deps))
	r.Post("/meeting-summary", meetingSummaryHandler(deps))
	r.Post("/meeting-summary-stream", meetingSummaryStreamHandler(deps))

	r.Post("/translate-file", translateFileHandler(deps))
	r.Post("/translate-file-stream", translateFileStreamHandler(deps))
	r.Post("/translate-files", translateFilesHandler(deps))

	return r
}

func indexHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]any{
			"service":       "dcia",
			"languages":     prompt.Languages,
			"rtl_languages": prompt.RTLLanguages,
			"default_model": deps.Config.OllamaModel,
		})
	}
}

func healthHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		available := deps.Gen.Health(r.Context())
		status := "healthy"
		if !available {
			status = "degraded"
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]any{
			"status":           status,
			"ollama_available": available,
			"ollama_url":       deps.Config.OllamaBaseURL,
		})
	}
}

// modelsHandler lists upstream models with the configured default first.
func modelsHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		models, err := deps.Gen.ListModels(r.Context())
		if err != nil {
			deps.Log.Error("failed to list models", "err", err)
			models = nil
		}

		defaultModel := deps.Config.OllamaModel
		ordered := make([]string, 0, len(models)+1)
		ordered = append(ordered, defaultModel)
		for _, m := range models {
			if m != defaultModel {
				ordered = append(ordered, m)
			}
		}

		httputil.WriteJSON(w, http.StatusOK, map[string]any{
			"models":        ordered,
			"default_model": defaultModel,
		})
	}
}

// failUpstream maps client errors to the API error shape: breaker open and
// exhausted retries are 502, anything else is 500.
func failUpstream(deps app.Deps, w http.ResponseWriter, message string, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, ollama.ErrCircuitOpen) || errors.Is(err, ollama.ErrUnavailable) {
		status = http.StatusBadGateway
	}
	httputil.Fail(deps.Log, w, message, err, status)
}
