package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/munifact/munifact/internal/artifact"
	"github.com/munifact/munifact/internal/async"
	"github.com/munifact/munifact/internal/common"
	"github.com/munifact/munifact/internal/extract/openai"
	"github.com/munifact/munifact/internal/extract/pdftext"
	"github.com/munifact/munifact/internal/extract/tesseract"
	"github.com/munifact/munifact/internal/ingest"
	"github.com/munifact/munifact/internal/pipeline"
	"github.com/munifact/munifact/internal/serialize"
	"github.com/munifact/munifact/internal/store"
)

// inlineQueue runs each job synchronously in the caller's goroutine; the CLI
// gets its concurrency from errgroup instead of a worker pool.
type inlineQueue struct {
	orch *pipeline.Orchestrator
}

func (q inlineQueue) Enqueue(ctx context.Context, job async.Job) error {
	if err := q.orch.Run(ctx, job.DocumentID); err != nil {
		// Run-level failures are already reflected on the document where
		// possible; the report below surfaces them.
		slog.Error("pipeline run failed", "document_id", job.DocumentID, "error", err)
	}
	return nil
}

func (q inlineQueue) Shutdown(context.Context) {}

func main() {
	var (
		concurrency = flag.Int("concurrency", 2, "files processed in parallel")
		format      = flag.String("format", "csv", "artifact format: csv or xlsx")
		outDir      = flag.String("out", "./artifacts", "artifact output directory")
	)
	flag.Parse()
	files := flag.Args()
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "usage: munifact [flags] file.pdf [file2.pdf ...]")
		os.Exit(2)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if cfg.LLM.APIKey == "" {
		logger.Error("OPENAI_API_KEY is required")
		os.Exit(1)
	}

	st := store.NewMemStore()
	artifacts, err := artifact.NewFSBlobs(*outDir, logger)
	if err != nil {
		logger.Error("artifact dir init failed", "error", err)
		os.Exit(1)
	}

	var serializer serialize.Serializer
	if *format == "xlsx" {
		serializer = serialize.NewXLSXSerializer()
	} else {
		serializer = serialize.NewCSVSerializer()
	}

	orch := pipeline.NewOrchestrator(
		pipeline.Config{MinTextWords: cfg.Pipeline.MinTextWords},
		st,
		pdftext.NewExtractor(logger),
		tesseract.NewExtractor(tesseract.Config{
			Tesseract: cfg.OCR.Tesseract,
			Language:  cfg.OCR.Language,
			DPI:       cfg.OCR.DPI,
		}, logger),
		openai.NewClient(openai.Config{
			BaseURL:     cfg.LLM.BaseURL,
			Model:       cfg.LLM.Model,
			APIKey:      cfg.LLM.APIKey,
			Temperature: cfg.LLM.Temperature,
			Timeout:     cfg.LLM.Timeout,
			MaxChars:    cfg.LLM.MaxChars,
		}, logger),
		serializer,
		artifacts,
		nil,
		logger,
	)

	ing, err := ingest.NewService(st, inlineQueue{orch: orch}, cfg.Pipeline.UploadDir, logger)
	if err != nil {
		logger.Error("ingest init failed", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(*concurrency)

	for _, path := range files {
		g.Go(func() error {
			f, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			defer f.Close()

			doc, err := ing.Ingest(gctx, 1, filepath.Base(path), f)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			return report(gctx, st, doc.ID, path)
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("batch failed", "error", err)
		os.Exit(1)
	}
}

func report(ctx context.Context, st store.Store, documentID int64, path string) error {
	doc, err := st.GetDocument(ctx, documentID)
	if err != nil {
		return err
	}
	steps, err := st.ListStepsByDocument(ctx, documentID)
	if err != nil {
		return err
	}

	fmt.Printf("%s: %s", path, doc.Status)
	if doc.RecordCount != nil {
		fmt.Printf(" (%d records)", *doc.RecordCount)
	}
	if doc.ArtifactRef != nil {
		fmt.Printf(" -> %s", *doc.ArtifactRef)
	}
	if doc.ErrorMessage != nil {
		fmt.Printf(": %s", *doc.ErrorMessage)
	}
	fmt.Println()
	for _, s := range steps {
		line := fmt.Sprintf("  %-17s %s", s.StepName, s.Status)
		if s.ErrorMessage != nil {
			line += " (" + *s.ErrorMessage + ")"
		}
		fmt.Println(line)
	}
	return nil
}
