package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/munifact/munifact/constants"
	"github.com/munifact/munifact/internal/async"
	"github.com/munifact/munifact/internal/entity"
	"github.com/munifact/munifact/internal/store"
)

// Service is the upload boundary: it persists the source bytes, seeds the
// document and its five step records, and schedules the pipeline run without
// blocking the caller.
type Service struct {
	store     store.Store
	queue     async.Queue
	uploadDir string
	logger    *slog.Logger
}

func NewService(st store.Store, queue async.Queue, uploadDir string, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Service{store: st, queue: queue, uploadDir: uploadDir, logger: logger}, nil
}

// Ingest accepts one uploaded file and returns the created document. The
// document is returned in `processing` status; if scheduling the run fails
// it is marked `error` before this returns, never silently dropped.
func (s *Service) Ingest(ctx context.Context, ownerID int64, filename string, r io.Reader) (*entity.Document, error) {
	ext := constants.NormalizeExt(filepath.Ext(filename))
	if _, ok := constants.AllowedExtensions[ext]; !ok {
		return nil, fmt.Errorf("unsupported or missing extension: %q", ext)
	}

	sourcePath := filepath.Join(s.uploadDir, uuid.New().String()+"."+ext)
	f, err := os.Create(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("create upload file: %w", err)
	}
	size, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(sourcePath)
		return nil, fmt.Errorf("write upload file: %w", err)
	}

	doc, err := s.store.CreateDocument(ctx, &entity.Document{
		OwnerID:      ownerID,
		Filename:     filename,
		OriginalSize: size,
		Status:       constants.DocProcessing,
		SourcePath:   sourcePath,
	})
	if err != nil {
		_ = os.Remove(sourcePath)
		return nil, fmt.Errorf("create document: %w", err)
	}

	if err := s.seedSteps(ctx, doc.ID); err != nil {
		return nil, err
	}

	job := async.Job{
		DocumentID:  doc.ID,
		SubmittedAt: time.Now().UTC(),
		TraceID:     uuid.New().String(),
	}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		s.logger.Error("schedule failed, marking document error", "document_id", doc.ID, "error", err)
		now := time.Now().UTC()
		errored := constants.DocError
		msg := fmt.Sprintf("could not schedule processing: %v", err)
		updated, uerr := s.store.UpdateDocument(ctx, doc.ID, store.DocumentUpdate{
			Status:       &errored,
			CompletedAt:  &now,
			ErrorMessage: &msg,
		})
		if uerr != nil {
			return nil, fmt.Errorf("mark document error: %w", uerr)
		}
		return updated, nil
	}

	s.logger.Info("document ingested",
		"document_id", doc.ID, "filename", filename, "bytes", size, "trace_id", job.TraceID)
	return doc, nil
}

// seedSteps creates the five step records for a fresh document: upload is
// already done by the time the document exists, the rest start pending.
func (s *Service) seedSteps(ctx context.Context, documentID int64) error {
	for _, name := range constants.PipelineSteps {
		st := constants.StepPending
		if name == constants.StepUpload {
			st = constants.StepCompleted
		}
		if _, err := s.store.CreateStep(ctx, &entity.Step{
			DocumentID: documentID,
			StepName:   name,
			Status:     st,
		}); err != nil {
			return fmt.Errorf("seed step %s: %w", name, err)
		}
	}
	return nil
}
