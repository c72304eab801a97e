package scenari

import (
	"archive/zip"
	"bytes"
	"fmt"
)

// BuildZip packs translated files into a ZIP archive.
func BuildZip(results []Result) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, res := range results {
		f, err := zw.Create(res.TranslatedFilename)
		if err != nil {
			return nil, fmt.Errorf("zip entry %s: %w", res.TranslatedFilename, err)
		}
		if _, err := f.Write(res.Content); err != nil {
			return nil, fmt.Errorf("zip write %s: %w", res.TranslatedFilename, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
