package pdftext

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gen2brain/go-fitz"

	"github.com/munifact/munifact/internal/extract"
)

// Extractor implements extract.TextExtractor over the embedded text layer of
// a PDF, backed by MuPDF via go-fitz. Scanned documents come back (near)
// empty here; the orchestrator routes those to the optical fallback.
type Extractor struct {
	logger *slog.Logger
}

func NewExtractor(logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{logger: logger}
}

func (e *Extractor) Extract(ctx context.Context, path string) (extract.TextResult, error) {
	start := time.Now()

	doc, err := fitz.New(path)
	if err != nil {
		e.logger.Error("pdftext.open_failed", "path", path, "error", err)
		return extract.TextResult{}, fmt.Errorf("open pdf: %w", err)
	}
	defer doc.Close()

	pages := doc.NumPage()
	var sb strings.Builder
	for n := 0; n < pages; n++ {
		select {
		case <-ctx.Done():
			return extract.TextResult{}, ctx.Err()
		default:
		}
		text, err := doc.Text(n)
		if err != nil {
			return extract.TextResult{}, fmt.Errorf("extract page %d: %w", n+1, err)
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}

	res := extract.TextResult{
		Text:     strings.TrimSpace(sb.String()),
		Pages:    pages,
		Duration: time.Since(start),
	}
	e.logger.Debug("pdftext.extract.ok",
		"path", path,
		"pages", pages,
		"chars", len(res.Text),
		"duration_ms", res.Duration.Milliseconds(),
	)
	return res, nil
}
