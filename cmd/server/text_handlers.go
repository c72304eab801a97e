package main

import (
	"encoding/json"
	"net/http"
	"strings"

	"dcia/internal/app"
	"dcia/internal/cache"
	"dcia/internal/httputil"
	"dcia/internal/jsonx"
	"dcia/internal/ollama"
	"dcia/internal/prompt"
	"dcia/internal/sse"
)

type translateRequest struct {
	Text       string `json:"text" validate:"required"`
	SourceLang string `json:"source_lang" validate:"required,oneof=fr en ar"`
	TargetLang string `json:"target_lang" validate:"required,oneof=fr en ar"`
	Model      string `json:"model"`
}

type textRequest struct {
	Text  string `json:"text" validate:"required"`
	Model string `json:"model"`
}

func decodeTranslateRequest(deps app.Deps, w http.ResponseWriter, r *http.Request) (translateRequest, bool) {
	var req translateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Fail(deps.Log, w, "invalid payload", err, http.StatusBadRequest)
		return req, false
	}
	if err := httputil.Validator.Struct(&req); err != nil {
		httputil.ValidationError(deps.Log, w, err)
		return req, false
	}
	if strings.TrimSpace(req.Text) == "" {
		httputil.Fail(deps.Log, w, "text to translate cannot be empty", nil, http.StatusBadRequest)
		return req, false
	}
	if err := prompt.ValidatePair(req.SourceLang, req.TargetLang); err != nil {
		httputil.Fail(deps.Log, w, err.Error(), err, http.StatusBadRequest)
		return req, false
	}
	return req, true
}

func decodeTextRequest(deps app.Deps, w http.ResponseWriter, r *http.Request, what string) (textRequest, bool) {
	var req textRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Fail(deps.Log, w, "invalid payload", err, http.StatusBadRequest)
		return req, false
	}
	if err := httputil.Validator.Struct(&req); err != nil {
		httputil.ValidationError(deps.Log, w, err)
		return req, false
	}
	if strings.TrimSpace(req.Text) == "" {
		httputil.Fail(deps.Log, w, "text to "+what+" cannot be empty", nil, http.StatusBadRequest)
		return req, false
	}
	return req, true
}

// handlerDeps adds small helpers on top of the shared dependency bundle.
type handlerDeps struct {
	app.Deps
}

func (d *handlerDeps) generateRequest(spec prompt.Spec, model string) ollama.GenerateRequest {
	return ollama.GenerateRequest{
		Model:       model,
		Prompt:      spec.Prompt,
		System:      spec.System,
		Temperature: spec.Temperature,
		TopP:        spec.TopP,
	}
}

func (d *handlerDeps) modelOrDefault(model string) string {
	if model == "" {
		return d.Config.OllamaModel
	}
	return model
}

// generateCached runs a non-streaming generation through the response
// cache. Cache errors only log; the upstream call is the source of truth.
func (d *handlerDeps) generateCached(r *http.Request, task string, spec prompt.Spec, model string, keyParts ...string) (string, error) {
	ctx := r.Context()
	key := cache.Key(task, d.modelOrDefault(model), keyParts...)

	if value, ok, err := d.Cache.Get(ctx, key); err != nil {
		d.Log.Warn("cache get failed", "task", task, "err", err)
	} else if ok {
		d.Log.Info("cache hit", "task", task)
		return value, nil
	}

	out, err := d.Gen.Generate(ctx, d.generateRequest(spec, model))
	if err != nil {
		return "", err
	}
	if err := d.Cache.Set(ctx, key, out, d.Config.CacheTTL); err != nil {
		d.Log.Warn("cache set failed", "task", task, "err", err)
	}
	return out, nil
}

func translateTextHandler(deps app.Deps) http.HandlerFunc {
	d := &handlerDeps{deps}
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeTranslateRequest(deps, w, r)
		if !ok {
			return
		}

		spec, err := prompt.Translation(req.Text, req.SourceLang, req.TargetLang)
		if err != nil {
			httputil.Fail(deps.Log, w, err.Error(), err, http.StatusBadRequest)
			return
		}

		out, err := d.generateCached(r, "translate", spec, req.Model,
			req.SourceLang, req.TargetLang, req.Text)
		if err != nil {
			failUpstream(deps, w, "failed to translate text with ollama", err)
			return
		}

		deps.Metrics.IncTextTranslations()
		deps.Log.Info("text translated",
			"source_lang", req.SourceLang, "target_lang", req.TargetLang,
			"model", d.modelOrDefault(req.Model))
		httputil.WriteJSON(w, http.StatusOK, map[string]string{
			"translated_text": out,
		})
	}
}

type correctionResult struct {
	CorrectedText string   `json:"corrected_text"`
	Explanations  []string `json:"explanations"`
}

func correctTextHandler(deps app.Deps) http.HandlerFunc {
	d := &handlerDeps{deps}
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeTextRequest(deps, w, r, "correct")
		if !ok {
			return
		}

		raw, err := d.generateCached(r, "correct", prompt.Correction(req.Text), req.Model, req.Text)
		if err != nil {
			failUpstream(deps, w, "failed to correct text with ollama", err)
			return
		}

		// The model may wrap its JSON in prose or fences; fall back to
		// the raw text when nothing parses.
		result := correctionResult{CorrectedText: raw, Explanations: []string{}}
		if obj, extracted := jsonx.Extract(raw); extracted {
			var parsed correctionResult
			if json.Unmarshal(obj, &parsed) == nil && parsed.CorrectedText != "" {
				result = parsed
			}
		}
		if result.Explanations == nil {
			result.Explanations = []string{}
		}
		result.CorrectedText = strings.TrimSpace(result.CorrectedText)

		deps.Metrics.IncCorrections()
		deps.Log.Info("text corrected", "model", d.modelOrDefault(req.Model))
		httputil.WriteJSON(w, http.StatusOK, result)
	}
}

type reformulationResult struct {
	ReformulatedText string   `json:"reformulated_text"`
	Highlights       []string `json:"highlights"`
}

func reformulateTextHandler(deps app.Deps) http.HandlerFunc {
	d := &handlerDeps{deps}
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeTextRequest(deps, w, r, "reformulate")
		if !ok {
			return
		}

		raw, err := d.generateCached(r, "reformulate", prompt.Reformulation(req.Text), req.Model, req.Text)
		if err != nil {
			failUpstream(deps, w, "failed to reformulate text with ollama", err)
			return
		}

		result := reformulationResult{ReformulatedText: raw, Highlights: []string{}}
		if obj, extracted := jsonx.Extract(raw); extracted {
			var parsed reformulationResult
			if json.Unmarshal(obj, &parsed) == nil && parsed.ReformulatedText != "" {
				result = parsed
			}
		}
		if result.Highlights == nil {
			result.Highlights = []string{}
		}
		result.ReformulatedText = strings.TrimSpace(result.ReformulatedText)

		deps.Metrics.IncReformulations()
		deps.Log.Info("text reformulated", "model", d.modelOrDefault(req.Model))
		httputil.WriteJSON(w, http.StatusOK, result)
	}
}

type summaryResult struct {
	Summary     string   `json:"summary"`
	Decisions   []string `json:"decisions"`
	ActionItems []string `json:"action_items"`
}

func meetingSummaryHandler(deps app.Deps) http.HandlerFunc {
	d := &handlerDeps{deps}
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeTextRequest(deps, w, r, "summarise")
		if !ok {
			return
		}

		raw, err := d.generateCached(r, "meeting-summary", prompt.MeetingSummary(req.Text), req.Model, req.Text)
		if err != nil {
			failUpstream(deps, w, "failed to summarise meeting notes with ollama", err)
			return
		}

		result := summaryResult{Summary: raw, Decisions: []string{}, ActionItems: []string{}}
		if obj, extracted := jsonx.Extract(raw); extracted {
			var parsed summaryResult
			if json.Unmarshal(obj, &parsed) == nil && parsed.Summary != "" {
				result = parsed
			}
		}
		if result.Decisions == nil {
			result.Decisions = []string{}
		}
		if result.ActionItems == nil {
			result.ActionItems = []string{}
		}
		result.Summary = strings.TrimSpace(result.Summary)

		deps.Metrics.IncMeetingSummaries()
		deps.Log.Info("meeting summary generated", "model", d.modelOrDefault(req.Model))
		httputil.WriteJSON(w, http.StatusOK, result)
	}
}

// streamSpec starts the upstream stream and relays it as SSE, reporting
// whether the stream was established. Upstream establish failures are
// reported as an SSE error frame so streaming clients consume a single
// content type.
func streamSpec(deps app.Deps, w http.ResponseWriter, r *http.Request, spec prompt.Spec, model string) bool {
	sw, err := sse.NewWriter(w)
	if err != nil {
		httputil.Fail(deps.Log, w, "streaming unsupported", err, http.StatusInternalServerError)
		return false
	}

	tokens, err := deps.Gen.GenerateStream(r.Context(), ollama.GenerateRequest{
		Model:       model,
		Prompt:      spec.Prompt,
		System:      spec.System,
		Temperature: spec.Temperature,
		TopP:        spec.TopP,
	})
	if err != nil {
		deps.Log.Error("failed to start stream", "err", err)
		_ = sw.Error(err.Error())
		return false
	}

	sse.Relay(r.Context(), sw, tokens)
	return true
}

func translateTextStreamHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeTranslateRequest(deps, w, r)
		if !ok {
			return
		}
		spec, err := prompt.Translation(req.Text, req.SourceLang, req.TargetLang)
		if err != nil {
			httputil.Fail(deps.Log, w, err.Error(), err, http.StatusBadRequest)
			return
		}
		if streamSpec(deps, w, r, spec, req.Model) {
			deps.Metrics.IncTextTranslations()
		}
	}
}

func correctTextStreamHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeTextRequest(deps, w, r, "correct")
		if !ok {
			return
		}
		if streamSpec(deps, w, r, prompt.Correction(req.Text), req.Model) {
			deps.Metrics.IncCorrections()
		}
	}
}

func reformulateTextStreamHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeTextRequest(deps, w, r, "reformulate")
		if !ok {
			return
		}
		if streamSpec(deps, w, r, prompt.Reformulation(req.Text), req.Model) {
			deps.Metrics.IncReformulations()
		}
	}
}

func meetingSummaryStreamHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeTextRequest(deps, w, r, "summarise")
		if !ok {
			return
		}
		if streamSpec(deps, w, r, prompt.MeetingSummary(req.Text), req.Model) {
			deps.Metrics.IncMeetingSummaries()
		}
	}
}
