// Package scenari translates SCENARI XML documents by replacing the text
// of sc:para elements with its translation, segment by segment.
package scenari

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/beevik/etree"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"dcia/internal/ollama"
	"dcia/internal/prompt"
)

// Namespace of translatable SCENARI content.
const Namespace = "http://www.utc.fr/ics/scenari/v3/core"

const translatableTag = "para"

// ErrInvalidXML marks documents that failed to parse.
var ErrInvalidXML = errors.New("invalid xml")

// Progress reports the state of one segment during a file translation.
type Progress struct {
	JobID   string `json:"job_id"`
	File    string `json:"file"`
	Segment int    `json:"segment"`
	Total   int    `json:"total"`
	Text    string `json:"text"`
}

// Result is a completed file translation.
type Result struct {
	OriginalFilename   string
	TranslatedFilename string
	Content            []byte
	SegmentsTranslated int
	TotalWords         int
}

// File is one uploaded document to translate.
type File struct {
	Name    string
	Content []byte
}

// Translator translates SCENARI files through the Ollama client.
type Translator struct {
	gen ollama.Generator
	log *slog.Logger
}

func NewTranslator(gen ollama.Generator, log *slog.Logger) *Translator {
	return &Translator{gen: gen, log: log.With("component", "scenari")}
}

// CountSegments returns the number of translatable segments in the file,
// or an error when the XML does not parse.
func CountSegments(content []byte) (int, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(content); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidXML, err)
	}
	return len(translatableElements(doc)), nil
}

// TranslateFile translates every sc:para segment of one document. The
// optional progress callback is invoked before each segment is sent
// upstream. Segments whose translation fails keep their original text.
func (t *Translator) TranslateFile(ctx context.Context, file File, source, target, model string, progress func(Progress)) (Result, error) {
	if err := prompt.ValidatePair(source, target); err != nil {
		return Result{}, err
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(file.Content); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidXML, err)
	}

	jobID := uuid.New().String()
	log := t.log.With("job_id", jobID, "file", file.Name)

	segments := translatableElements(doc)
	total := len(segments)
	translated := 0
	words := 0

	for i, el := range segments {
		text := elementText(el)
		words += len(strings.Fields(text))

		if progress != nil {
			progress(Progress{
				JobID:   jobID,
				File:    file.Name,
				Segment: i + 1,
				Total:   total,
				Text:    truncate(text, 50),
			})
		}

		spec, err := prompt.XMLTranslation(text, source, target)
		if err != nil {
			return Result{}, err
		}
		out, err := t.gen.Generate(ctx, ollama.GenerateRequest{
			Model:       model,
			Prompt:      spec.Prompt,
			System:      spec.System,
			Temperature: spec.Temperature,
			TopP:        spec.TopP,
		})
		if err != nil {
			if ctx.Err() != nil {
				return Result{}, ctx.Err()
			}
			log.Warn("segment translation failed", "segment", i+1, "err", err)
			continue
		}

		setElementText(el, out)
		translated++
	}

	if root := doc.Root(); root != nil {
		root.CreateAttr("xml:lang", target)
	}
	doc.Indent(2)

	out, err := doc.WriteToBytes()
	if err != nil {
		return Result{}, fmt.Errorf("serialize xml: %w", err)
	}

	log.Info("file translated", "segments", translated, "total", total, "words", words)
	return Result{
		OriginalFilename:   file.Name,
		TranslatedFilename: translatedName(file.Name, target),
		Content:            out,
		SegmentsTranslated: translated,
		TotalWords:         words,
	}, nil
}

// TranslateAll translates a batch of files concurrently with a bounded
// number of in-flight files. Results keep the input order.
func (t *Translator) TranslateAll(ctx context.Context, files []File, source, target, model string, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 1
	}
	results := make([]Result, len(files))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			res, err := t.TranslateFile(ctx, f, source, target, model, nil)
			if err != nil {
				return fmt.Errorf("%s: %w", f.Name, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func translatableElements(doc *etree.Document) []*etree.Element {
	root := doc.Root()
	if root == nil {
		return nil
	}
	var out []*etree.Element
	var walk func(el *etree.Element)
	walk = func(el *etree.Element) {
		if el.Tag == translatableTag && el.NamespaceURI() == Namespace {
			if strings.TrimSpace(elementText(el)) != "" {
				out = append(out, el)
				return // nested paras are already covered by the parent's text
			}
		}
		for _, child := range el.ChildElements() {
			walk(child)
		}
	}
	walk(root)
	return out
}

// elementText concatenates all character data under el, including nested
// elements.
func elementText(el *etree.Element) string {
	var b strings.Builder
	var walk func(el *etree.Element)
	walk = func(el *etree.Element) {
		for _, child := range el.Child {
			switch c := child.(type) {
			case *etree.CharData:
				b.WriteString(c.Data)
			case *etree.Element:
				walk(c)
			}
		}
	}
	walk(el)
	return strings.TrimSpace(b.String())
}

// setElementText replaces el's entire content with plain text.
func setElementText(el *etree.Element, text string) {
	for _, child := range append([]etree.Token(nil), el.Child...) {
		el.RemoveChild(child)
	}
	el.SetText(text)
}

func translatedName(filename, target string) string {
	if i := strings.LastIndexByte(filename, '.'); i > 0 {
		return filename[:i] + "_" + target + filename[i:]
	}
	return filename + "_" + target
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
