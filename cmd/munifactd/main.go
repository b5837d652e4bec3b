package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/munifact/munifact/internal/artifact"
	"github.com/munifact/munifact/internal/async"
	"github.com/munifact/munifact/internal/common"
	"github.com/munifact/munifact/internal/extract/openai"
	"github.com/munifact/munifact/internal/extract/pdftext"
	"github.com/munifact/munifact/internal/extract/tesseract"
	"github.com/munifact/munifact/internal/ingest"
	"github.com/munifact/munifact/internal/pipeline"
	"github.com/munifact/munifact/internal/serialize"
	"github.com/munifact/munifact/internal/server"
	"github.com/munifact/munifact/internal/status"
	"github.com/munifact/munifact/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("store init failed", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("store close failed", "error", err)
		}
	}()

	artifacts, err := artifact.NewFSBlobs(cfg.Pipeline.ArtifactDir, logger)
	if err != nil {
		logger.Error("artifact dir init failed", "error", err)
		os.Exit(1)
	}

	var serializer serialize.Serializer
	switch cfg.Pipeline.Format {
	case "xlsx":
		serializer = serialize.NewXLSXSerializer()
	default:
		serializer = serialize.NewCSVSerializer()
	}

	notifier := status.NewNotifier()
	orch := pipeline.NewOrchestrator(
		pipeline.Config{MinTextWords: cfg.Pipeline.MinTextWords},
		st,
		pdftext.NewExtractor(logger),
		tesseract.NewExtractor(tesseract.Config{
			Tesseract: cfg.OCR.Tesseract,
			Language:  cfg.OCR.Language,
			DPI:       cfg.OCR.DPI,
			PSM:       cfg.OCR.PSM,
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
		notifier,
		logger,
	)

	queue := async.NewPipelineQueue(orch, st, logger,
		async.WithWorkers(cfg.Pipeline.Workers),
		async.WithQueueSize(cfg.Pipeline.QueueSize),
		async.WithProcessTimeout(cfg.Pipeline.ProcessTimeout),
	)

	ing, err := ingest.NewService(st, queue, cfg.Pipeline.UploadDir, logger)
	if err != nil {
		logger.Error("ingest init failed", "error", err)
		os.Exit(1)
	}
	statusSvc := status.NewService(st, notifier)

	srv := server.New(ing, statusSvc, st, artifacts, cfg.Server.MaxUploadBytes, logger)
	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: srv.Routes(),
	}

	go func() {
		logger.Info("http serving", "addr", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http serve failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete", "error", err)
	}
	queue.Shutdown(shutdownCtx)
	logger.Info("stopped")
}

func openStore(ctx context.Context, cfg *common.Config, logger *slog.Logger) (store.Store, error) {
	switch cfg.Store.Backend {
	case "sqlite":
		return store.OpenSQLite(ctx, cfg.Store.DSN, logger)
	case "postgres":
		return store.OpenPostgres(ctx, store.PostgresConfig{
			DSN:             cfg.Store.DSN,
			MaxConns:        cfg.Store.MaxConns,
			MinConns:        cfg.Store.MinConns,
			MaxConnLifetime: cfg.Store.MaxConnLifetime,
			MaxConnIdleTime: cfg.Store.MaxConnIdleTime,
			DialTimeout:     cfg.Store.DialTimeout,
		}, logger)
	default:
		return store.NewMemStore(), nil
	}
}
