package tesseract

import (
	"context"
	"fmt"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gen2brain/go-fitz"

	"github.com/munifact/munifact/constants"
	"github.com/munifact/munifact/internal/extract"
)

type Config struct {
	Tesseract string // binary name or absolute path; if empty -> "tesseract"
	Language  string // default "eng"
	DPI       int    // rasterization DPI for PDF pages, default 300
	PSM       int    // page segmentation mode; 0 = tesseract default
	MaxPages  int    // 0 = no limit
}

// Extractor implements extract.OpticalExtractor by shelling out to the
// tesseract binary. PDF inputs are rasterized page by page with MuPDF first;
// image inputs go straight through.
type Extractor struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func NewExtractor(cfg Config, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.Language == "" {
		cfg.Language = "eng"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	return &Extractor{cfg: cfg, runner: execRunner{}, logger: logger}
}

func (e *Extractor) Recognize(ctx context.Context, path string) (extract.OpticalResult, error) {
	start := time.Now()

	ext := constants.NormalizeExt(filepath.Ext(path))
	var (
		text string
		err  error
	)
	switch constants.MapExtToFormat(ext) {
	case constants.PDF:
		text, err = e.recognizePDF(ctx, path)
	case constants.IMAGE:
		text, err = e.recognizeImage(ctx, path)
	default:
		return extract.OpticalResult{}, fmt.Errorf("unsupported extension: %q", ext)
	}
	if err != nil {
		return extract.OpticalResult{}, err
	}

	res := extract.OpticalResult{
		Text:     strings.TrimSpace(text),
		Duration: time.Since(start),
	}
	e.logger.Debug("tesseract.recognize.ok",
		"path", path,
		"chars", len(res.Text),
		"duration_ms", res.Duration.Milliseconds(),
	)
	return res, nil
}

func (e *Extractor) recognizeImage(ctx context.Context, path string) (string, error) {
	args := []string{path, "stdout", "-l", e.cfg.Language}
	if e.cfg.PSM > 0 {
		args = append(args, "--psm", strconv.Itoa(e.cfg.PSM))
	}
	out, _, err := e.runner.Run(ctx, e.cfg.Tesseract, args...)
	if err != nil {
		return "", fmt.Errorf("tesseract: %w", err)
	}
	return string(out), nil
}

func (e *Extractor) recognizePDF(ctx context.Context, path string) (string, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer doc.Close()

	tempDir, err := os.MkdirTemp("", "munifact-ocr-*")
	if err != nil {
		return "", fmt.Errorf("temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	pages := doc.NumPage()
	if e.cfg.MaxPages > 0 && pages > e.cfg.MaxPages {
		pages = e.cfg.MaxPages
	}

	var sb strings.Builder
	for n := 0; n < pages; n++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		img, err := doc.ImageDPI(n, float64(e.cfg.DPI))
		if err != nil {
			return "", fmt.Errorf("rasterize page %d: %w", n+1, err)
		}
		pagePath := filepath.Join(tempDir, fmt.Sprintf("page_%03d.png", n+1))
		f, err := os.Create(pagePath)
		if err != nil {
			return "", fmt.Errorf("create page image: %w", err)
		}
		err = png.Encode(f, img)
		_ = f.Close()
		if err != nil {
			return "", fmt.Errorf("encode page %d: %w", n+1, err)
		}

		pageText, err := e.recognizeImage(ctx, pagePath)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", n+1, err)
		}
		sb.WriteString(pageText)
		sb.WriteString("\n")
	}
	return sb.String(), nil
}
