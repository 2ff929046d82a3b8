package ingestion

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/recruitai/screening-agent/internal/textutil"
)

// MinExtractedTextLength is the minimum text length for an extraction to be
// considered usable.
const MinExtractedTextLength = 50

// Extractor turns raw document bytes into plain text plus a page count.
// Implementations fail soft: on any problem they return empty text and zero
// pages so the pipeline can reject the candidate instead of crashing the
// batch.
type Extractor interface {
	Extract(ctx context.Context, data []byte, mimeHint string) (text string, pages int)
}

// CommandExtractor shells out to poppler's pdftotext/pdfinfo for PDFs and
// passes plain text through unchanged.
type CommandExtractor struct {
	logger *zap.Logger
}

// NewCommandExtractor creates an extractor that logs failures through logger.
func NewCommandExtractor(logger *zap.Logger) *CommandExtractor {
	return &CommandExtractor{logger: logger}
}

func (e *CommandExtractor) Extract(ctx context.Context, data []byte, mimeHint string) (string, int) {
	if isPDF(data, mimeHint) {
		return e.extractPDF(ctx, data)
	}

	text := textutil.SanitizeUTF8(string(data))
	if looksBinary(text) {
		e.logger.Warn("document looks binary, skipping", zap.String("mime_hint", mimeHint))
		return "", 0
	}
	return text, 1
}

func isPDF(data []byte, mimeHint string) bool {
	if strings.Contains(mimeHint, "pdf") {
		return true
	}
	return bytes.HasPrefix(data, []byte("%PDF-"))
}

var pdfPagesRe = regexp.MustCompile(`(?m)^Pages:\s+(\d+)`)

func (e *CommandExtractor) extractPDF(ctx context.Context, data []byte) (string, int) {
	tmp, err := os.CreateTemp("", "candidate-*.pdf")
	if err != nil {
		e.logger.Warn("creating temp file for extraction", zap.Error(err))
		return "", 0
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		e.logger.Warn("writing temp file for extraction", zap.Error(err))
		return "", 0
	}
	tmp.Close()

	out, err := exec.CommandContext(ctx, "pdftotext", "-layout", tmp.Name(), "-").Output()
	if err != nil {
		e.logger.Warn("pdftotext failed (is poppler-utils installed?)", zap.Error(err))
		return "", 0
	}
	text := textutil.SanitizeUTF8(string(out))
	if len(strings.TrimSpace(text)) < MinExtractedTextLength {
		e.logger.Warn("extracted text too short, treating as failed extraction",
			zap.Int("length", len(text)))
		return "", 0
	}

	return text, e.pageCount(ctx, tmp.Name())
}

func (e *CommandExtractor) pageCount(ctx context.Context, path string) int {
	out, err := exec.CommandContext(ctx, "pdfinfo", path).Output()
	if err != nil {
		e.logger.Warn("pdfinfo failed, assuming single page", zap.Error(err))
		return 1
	}
	m := pdfPagesRe.FindSubmatch(out)
	if m == nil {
		return 1
	}
	pages, err := strconv.Atoi(string(m[1]))
	if err != nil || pages < 1 {
		return 1
	}
	return pages
}

// looksBinary checks for container magic numbers and a high proportion of
// non-printable characters.
func looksBinary(content string) bool {
	if len(content) == 0 {
		return false
	}
	if strings.HasPrefix(content, "%PDF-") || strings.HasPrefix(content, "PK") {
		return true
	}

	sample := len(content)
	if sample > 1000 {
		sample = 1000
	}
	nonPrintable := 0
	for i := 0; i < sample; i++ {
		ch := content[i]
		if ch < 32 && ch != '\n' && ch != '\r' && ch != '\t' {
			nonPrintable++
		}
	}
	return float64(nonPrintable)/float64(sample) > 0.3
}

// MimeHint guesses a mime hint from the filename extension.
func MimeHint(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return "application/pdf"
	case ".txt":
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}
