package main

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"dcia/internal/app"
	"dcia/internal/httputil"
	"dcia/internal/prompt"
	"dcia/internal/scenari"
	"dcia/internal/sse"
)

// fileForm is the validated multipart payload shared by the file
// translation endpoints.
type fileForm struct {
	SourceLang string
	TargetLang string
	Model      string
}

func decodeFileForm(deps app.Deps, w http.ResponseWriter, r *http.Request) (fileForm, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, deps.Config.MaxUploadSize)
	if err := r.ParseMultipartForm(deps.Config.MaxUploadSize); err != nil {
		httputil.Fail(deps.Log, w, "invalid multipart payload", err, http.StatusBadRequest)
		return fileForm{}, false
	}

	form := fileForm{
		SourceLang: r.FormValue("source_lang"),
		TargetLang: r.FormValue("target_lang"),
		Model:      r.FormValue("model"),
	}
	if err := prompt.ValidatePair(form.SourceLang, form.TargetLang); err != nil {
		httputil.Fail(deps.Log, w, err.Error(), err, http.StatusBadRequest)
		return fileForm{}, false
	}
	return form, true
}

func readUpload(fh *multipart.FileHeader) (scenari.File, error) {
	f, err := fh.Open()
	if err != nil {
		return scenari.File{}, err
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		return scenari.File{}, err
	}
	return scenari.File{Name: fh.Filename, Content: content}, nil
}

func translateFileHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		form, ok := decodeFileForm(deps, w, r)
		if !ok {
			return
		}

		f, fh, err := r.FormFile("file")
		if err != nil {
			httputil.Fail(deps.Log, w, "file is required", err, http.StatusBadRequest)
			return
		}
		f.Close()
		file, err := readUpload(fh)
		if err != nil {
			httputil.Fail(deps.Log, w, "failed to read file", err, http.StatusInternalServerError)
			return
		}

		total, err := scenari.CountSegments(file.Content)
		if err != nil {
			httputil.Fail(deps.Log, w, "invalid SCENARI XML file", err, http.StatusBadRequest)
			return
		}

		res, err := deps.Files.TranslateFile(r.Context(), file, form.SourceLang, form.TargetLang, form.Model, nil)
		if err != nil {
			httputil.Fail(deps.Log, w, "failed to translate file", err, http.StatusInternalServerError)
			return
		}
		if total > 0 && res.SegmentsTranslated == 0 {
			httputil.Fail(deps.Log, w, "failed to translate file with ollama", nil, http.StatusBadGateway)
			return
		}

		deps.Metrics.IncFileTranslations()
		w.Header().Set("Content-Type", "application/xml")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", res.TranslatedFilename))
		w.Header().Set("X-Segments-Translated", fmt.Sprintf("%d", res.SegmentsTranslated))
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(res.Content); err != nil {
			deps.Log.Error("failed to write translated file", "err", err)
		}
	}
}

// translateFileStreamHandler reports per-segment progress over SSE and
// finishes with a summary event before the sentinel. The translated
// document itself is fetched via the non-streaming endpoint.
func translateFileStreamHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		form, ok := decodeFileForm(deps, w, r)
		if !ok {
			return
		}
		f, fh, err := r.FormFile("file")
		if err != nil {
			httputil.Fail(deps.Log, w, "file is required", err, http.StatusBadRequest)
			return
		}
		f.Close()
		file, err := readUpload(fh)
		if err != nil {
			httputil.Fail(deps.Log, w, "failed to read file", err, http.StatusInternalServerError)
			return
		}

		sw, err := sse.NewWriter(w)
		if err != nil {
			httputil.Fail(deps.Log, w, "streaming unsupported", err, http.StatusInternalServerError)
			return
		}

		res, err := deps.Files.TranslateFile(r.Context(), file, form.SourceLang, form.TargetLang, form.Model,
			func(p scenari.Progress) { _ = sw.Event(p) })
		if err != nil {
			if r.Context().Err() == nil {
				_ = sw.Error(err.Error())
			}
			return
		}

		deps.Metrics.IncFileTranslations()
		_ = sw.Event(map[string]any{
			"file":                res.OriginalFilename,
			"translated_filename": res.TranslatedFilename,
			"segments_translated": res.SegmentsTranslated,
			"total_words":         res.TotalWords,
		})
		_ = sw.Done()
	}
}

func translateFilesHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		form, ok := decodeFileForm(deps, w, r)
		if !ok {
			return
		}

		var headers []*multipart.FileHeader
		if r.MultipartForm != nil {
			headers = r.MultipartForm.File["files"]
		}
		if len(headers) == 0 {
			httputil.Fail(deps.Log, w, "at least one file is required", nil, http.StatusBadRequest)
			return
		}

		files := make([]scenari.File, 0, len(headers))
		for _, fh := range headers {
			f, err := readUpload(fh)
			if err != nil {
				httputil.Fail(deps.Log, w, "failed to read file "+fh.Filename, err, http.StatusInternalServerError)
				return
			}
			files = append(files, f)
		}

		results, err := deps.Files.TranslateAll(r.Context(), files, form.SourceLang, form.TargetLang, form.Model,
			deps.Config.BatchConcurrency)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, scenari.ErrInvalidXML) || errors.Is(err, prompt.ErrUnsupportedLanguage) {
				status = http.StatusBadRequest
			}
			httputil.Fail(deps.Log, w, "failed to translate files", err, status)
			return
		}

		archive, err := scenari.BuildZip(results)
		if err != nil {
			httputil.Fail(deps.Log, w, "failed to build archive", err, http.StatusInternalServerError)
			return
		}

		for range results {
			deps.Metrics.IncFileTranslations()
		}
		w.Header().Set("Content-Type", "application/zip")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "translated_"+form.TargetLang+".zip"))
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(archive); err != nil {
			deps.Log.Error("failed to write archive", "err", err)
		}
	}
}
