package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/munifact/munifact/constants"
	"github.com/munifact/munifact/internal/artifact"
	"github.com/munifact/munifact/internal/entity"
	"github.com/munifact/munifact/internal/extract"
	"github.com/munifact/munifact/internal/serialize"
	"github.com/munifact/munifact/internal/status"
	"github.com/munifact/munifact/internal/store"
)

// MsgNoText is the terminal document message when neither the text layer nor
// the optical path yields usable text. The polling UI matches on it.
const MsgNoText = "no text could be extracted"

// Config holds orchestrator policy knobs.
type Config struct {
	// MinTextWords is the fallback threshold: when the primary text
	// extraction yields fewer whitespace-separated words than this, the
	// optical path runs. Zero means only empty text triggers the fallback.
	MinTextWords int
}

// Orchestrator drives one document from processing to a terminal status.
//
// Stage failures are absorbed into step/document state; only store failures
// and contract violations escape Run. Every step transition is an immediate,
// independently visible store write, so polling clients can observe any
// prefix of the run.
type Orchestrator struct {
	cfg        Config
	store      store.Store
	text       extract.TextExtractor
	optical    extract.OpticalExtractor
	semantic   extract.SemanticExtractor
	serializer serialize.Serializer
	artifacts  artifact.Blobs
	notifier   *status.Notifier
	logger     *slog.Logger
}

func NewOrchestrator(
	cfg Config,
	st store.Store,
	text extract.TextExtractor,
	optical extract.OpticalExtractor,
	semantic extract.SemanticExtractor,
	serializer serialize.Serializer,
	artifacts artifact.Blobs,
	notifier *status.Notifier,
	logger *slog.Logger,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		cfg:        cfg,
		store:      st,
		text:       text,
		optical:    optical,
		semantic:   semantic,
		serializer: serializer,
		artifacts:  artifacts,
		notifier:   notifier,
		logger:     logger,
	}
}

// Run executes the five-stage protocol for documentID. Re-running against a
// document that already reached a terminal status is a no-op.
func (o *Orchestrator) Run(ctx context.Context, documentID int64) error {
	doc, err := o.store.GetDocument(ctx, documentID)
	if err != nil {
		return fmt.Errorf("load document: %w", err)
	}
	if doc.Status.Terminal() {
		o.logger.Warn("pipeline.run.already_terminal", "document_id", documentID, "status", doc.Status)
		return nil
	}

	// The uploaded bytes are released whenever the run leaves, success or not.
	defer o.cleanupSource(doc)

	steps, err := o.loadSteps(ctx, documentID)
	if err != nil {
		return err
	}

	o.logger.Info("pipeline.run.start", "document_id", documentID, "filename", doc.Filename)

	// Stage: text_extract.
	if err := o.stepProcessing(ctx, steps[constants.StepTextExtract]); err != nil {
		return err
	}
	var text string
	textRes, textErr := o.text.Extract(ctx, doc.SourcePath)
	if textErr != nil {
		// Recoverable: the optical path always runs after a text failure.
		if err := o.stepError(ctx, steps[constants.StepTextExtract], textErr.Error()); err != nil {
			return err
		}
		o.logger.Warn("pipeline.text_extract.failed", "document_id", documentID, "error", textErr)
	} else {
		if err := o.stepCompleted(ctx, steps[constants.StepTextExtract]); err != nil {
			return err
		}
		text = textRes.Text
		o.logger.Info("pipeline.text_extract.ok",
			"document_id", documentID, "pages", textRes.Pages, "chars", len(text))
	}

	// Stage: optical_fallback (conditional). Skipped entirely when the text
	// layer produced enough words; the step then stays pending forever.
	if textErr != nil || extract.WordCount(text) < o.cfg.MinTextWords || strings.TrimSpace(text) == "" {
		if err := o.stepProcessing(ctx, steps[constants.StepOpticalFallback]); err != nil {
			return err
		}
		optRes, optErr := o.optical.Recognize(ctx, doc.SourcePath)
		if optErr != nil {
			if err := o.stepError(ctx, steps[constants.StepOpticalFallback], optErr.Error()); err != nil {
				return err
			}
			return o.failDocument(ctx, documentID, MsgNoText)
		}
		if err := o.stepCompleted(ctx, steps[constants.StepOpticalFallback]); err != nil {
			return err
		}
		text = optRes.Text
		o.logger.Info("pipeline.optical_fallback.ok",
			"document_id", documentID, "chars", len(text), "confidence", optRes.Confidence)
	}

	if strings.TrimSpace(text) == "" {
		return o.failDocument(ctx, documentID, MsgNoText)
	}

	// Stage: semantic_extract.
	if err := o.stepProcessing(ctx, steps[constants.StepSemanticExtract]); err != nil {
		return err
	}
	data, semErr := o.semantic.Extract(ctx, text)
	if semErr != nil {
		if err := o.stepError(ctx, steps[constants.StepSemanticExtract], semErr.Error()); err != nil {
			return err
		}
		return o.failDocument(ctx, documentID, semErr.Error())
	}
	if err := o.stepCompleted(ctx, steps[constants.StepSemanticExtract]); err != nil {
		return err
	}
	o.logger.Info("pipeline.semantic_extract.ok",
		"document_id", documentID, "records", data.TotalRecords())

	// Stage: serialize.
	if err := o.stepProcessing(ctx, steps[constants.StepSerialize]); err != nil {
		return err
	}
	out, serErr := o.serializer.Serialize(data)
	if serErr != nil {
		if err := o.stepError(ctx, steps[constants.StepSerialize], serErr.Error()); err != nil {
			return err
		}
		return o.failDocument(ctx, documentID, serErr.Error())
	}
	if err := o.stepCompleted(ctx, steps[constants.StepSerialize]); err != nil {
		return err
	}

	name := fmt.Sprintf("%d_output.%s", documentID, o.serializer.Extension())
	ref, putErr := o.artifacts.Put(name, out)
	if putErr != nil {
		return o.failDocument(ctx, documentID, fmt.Sprintf("persist artifact: %v", putErr))
	}

	now := time.Now().UTC()
	count := data.TotalRecords()
	completed := constants.DocCompleted
	updated, err := o.store.UpdateDocument(ctx, documentID, store.DocumentUpdate{
		Status:      &completed,
		CompletedAt: &now,
		RecordCount: &count,
		ArtifactRef: &ref,
	})
	if err != nil {
		return fmt.Errorf("complete document: %w", err)
	}
	o.publishDocument(updated)

	o.logger.Info("pipeline.run.completed",
		"document_id", documentID, "records", count, "artifact_ref", ref)
	return nil
}

func (o *Orchestrator) loadSteps(ctx context.Context, documentID int64) (map[constants.StepName]*entity.Step, error) {
	steps, err := o.store.ListStepsByDocument(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("load steps: %w", err)
	}
	byName := make(map[constants.StepName]*entity.Step, len(steps))
	for _, st := range steps {
		byName[st.StepName] = st
	}
	for _, name := range constants.PipelineSteps {
		if _, ok := byName[name]; !ok {
			return nil, fmt.Errorf("step %q missing for document %d", name, documentID)
		}
	}
	return byName, nil
}

func (o *Orchestrator) stepProcessing(ctx context.Context, st *entity.Step) error {
	now := time.Now().UTC()
	processing := constants.StepProcessing
	updated, err := o.store.UpdateStep(ctx, st.ID, store.StepUpdate{
		Status:    &processing,
		StartedAt: &now,
	})
	if err != nil {
		return fmt.Errorf("step %s processing: %w", st.StepName, err)
	}
	o.publishStep(updated)
	return nil
}

func (o *Orchestrator) stepCompleted(ctx context.Context, st *entity.Step) error {
	now := time.Now().UTC()
	completed := constants.StepCompleted
	updated, err := o.store.UpdateStep(ctx, st.ID, store.StepUpdate{
		Status:      &completed,
		CompletedAt: &now,
	})
	if err != nil {
		return fmt.Errorf("step %s completed: %w", st.StepName, err)
	}
	o.publishStep(updated)
	return nil
}

func (o *Orchestrator) stepError(ctx context.Context, st *entity.Step, msg string) error {
	now := time.Now().UTC()
	errored := constants.StepError
	updated, err := o.store.UpdateStep(ctx, st.ID, store.StepUpdate{
		Status:       &errored,
		CompletedAt:  &now,
		ErrorMessage: &msg,
	})
	if err != nil {
		return fmt.Errorf("step %s error: %w", st.StepName, err)
	}
	o.publishStep(updated)
	return nil
}

// failDocument writes the single terminal error state for the run.
func (o *Orchestrator) failDocument(ctx context.Context, documentID int64, msg string) error {
	now := time.Now().UTC()
	errored := constants.DocError
	updated, err := o.store.UpdateDocument(ctx, documentID, store.DocumentUpdate{
		Status:       &errored,
		CompletedAt:  &now,
		ErrorMessage: &msg,
	})
	if err != nil {
		return fmt.Errorf("fail document: %w", err)
	}
	o.publishDocument(updated)
	o.logger.Warn("pipeline.run.failed", "document_id", documentID, "error_message", msg)
	return nil
}

func (o *Orchestrator) cleanupSource(doc *entity.Document) {
	if doc.SourcePath == "" {
		return
	}
	if err := os.Remove(doc.SourcePath); err != nil && !os.IsNotExist(err) {
		o.logger.Warn("pipeline.cleanup.failed", "document_id", doc.ID, "path", doc.SourcePath, "error", err)
	}
}

func (o *Orchestrator) publishStep(st *entity.Step) {
	if o.notifier == nil {
		return
	}
	o.notifier.Publish(status.Event{Kind: status.EventStep, DocumentID: st.DocumentID, Step: st})
}

func (o *Orchestrator) publishDocument(doc *entity.Document) {
	if o.notifier == nil {
		return
	}
	o.notifier.Publish(status.Event{Kind: status.EventDocument, DocumentID: doc.ID, Document: doc})
}
