package ingestion

import (
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"

	"github.com/recruitai/screening-agent/internal/models"
)

// supportedExt lists the document types the pipeline accepts.
var supportedExt = map[string]bool{
	".pdf": true,
	".txt": true,
}

// Supported reports whether the filename carries an accepted extension.
func Supported(filename string) bool {
	return supportedExt[strings.ToLower(filepath.Ext(filename))]
}

// ReadUploads drains the multipart file headers into sourced files, skipping
// unsupported types. Filenames are left as submitted; DedupFilenames runs
// across all sources afterwards.
func ReadUploads(headers []*multipart.FileHeader) ([]models.SourcedFile, error) {
	files := make([]models.SourcedFile, 0, len(headers))
	for _, header := range headers {
		if !Supported(header.Filename) {
			continue
		}
		f, err := header.Open()
		if err != nil {
			return nil, fmt.Errorf("opening upload %s: %w", header.Filename, err)
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("reading upload %s: %w", header.Filename, err)
		}
		files = append(files, models.SourcedFile{
			Filename: filepath.Base(header.Filename),
			Data:     data,
		})
	}
	return files, nil
}

// DedupFilenames makes filenames unique within a batch by appending a
// numeric suffix before the extension. The filename is the candidate key, so
// collisions across sources (upload vs mailbox) must not silently drop
// documents.
func DedupFilenames(files []models.SourcedFile) []models.SourcedFile {
	seen := make(map[string]int, len(files))
	out := make([]models.SourcedFile, len(files))
	for i, f := range files {
		name := f.Filename
		if n := seen[strings.ToLower(name)]; n > 0 {
			ext := filepath.Ext(name)
			base := strings.TrimSuffix(name, ext)
			name = fmt.Sprintf("%s (%d)%s", base, n, ext)
		}
		seen[strings.ToLower(f.Filename)]++
		out[i] = f
		out[i].Filename = name
	}
	return out
}
