package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/munifact/munifact/constants"
	"github.com/munifact/munifact/internal/entity"
	"github.com/munifact/munifact/internal/extract"
	"github.com/munifact/munifact/internal/status"
	"github.com/munifact/munifact/internal/store"
)

type stubText struct {
	text  string
	pages int
	err   error
	calls int
}

func (s *stubText) Extract(context.Context, string) (extract.TextResult, error) {
	s.calls++
	if s.err != nil {
		return extract.TextResult{}, s.err
	}
	return extract.TextResult{Text: s.text, Pages: s.pages}, nil
}

type stubOptical struct {
	text  string
	err   error
	calls int
}

func (s *stubOptical) Recognize(context.Context, string) (extract.OpticalResult, error) {
	s.calls++
	if s.err != nil {
		return extract.OpticalResult{}, s.err
	}
	return extract.OpticalResult{Text: s.text, Confidence: 0.9}, nil
}

type stubSemantic struct {
	data  *extract.FinancialData
	err   error
	calls int
	seen  string
}

func (s *stubSemantic) Extract(_ context.Context, text string) (*extract.FinancialData, error) {
	s.calls++
	s.seen = text
	if s.err != nil {
		return nil, s.err
	}
	return s.data, nil
}

type stubSerializer struct {
	out   []byte
	err   error
	calls int
}

func (s *stubSerializer) Serialize(*extract.FinancialData) ([]byte, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.out, nil
}

func (s *stubSerializer) Extension() string { return "csv" }

type memBlobs struct {
	m      map[string][]byte
	putErr error
}

func newMemBlobs() *memBlobs { return &memBlobs{m: make(map[string][]byte)} }

func (b *memBlobs) Put(name string, data []byte) (string, error) {
	if b.putErr != nil {
		return "", b.putErr
	}
	b.m[name] = data
	return name, nil
}

func (b *memBlobs) Open(ref string) (io.ReadCloser, error) {
	data, ok := b.m[ref]
	if !ok {
		return nil, fmt.Errorf("no blob %q", ref)
	}
	return io.NopCloser(strings.NewReader(string(data))), nil
}

func (b *memBlobs) Remove(ref string) error {
	delete(b.m, ref)
	return nil
}

func financialData(revenues, expenditures int) *extract.FinancialData {
	cats := map[constants.Category][]extract.Record{}
	for i := 0; i < revenues; i++ {
		cats[constants.Revenues] = append(cats[constants.Revenues], extract.Record{
			Category: "Property Tax", Amount: "1000", Description: fmt.Sprintf("rev %d", i),
		})
	}
	for i := 0; i < expenditures; i++ {
		cats[constants.Expenditures] = append(cats[constants.Expenditures], extract.Record{
			Category: "Public Safety", Amount: "500", Description: fmt.Sprintf("exp %d", i),
		})
	}
	return &extract.FinancialData{
		Categories: cats,
		Metadata:   extract.Metadata{Municipality: "Springfield", FiscalYear: "2024", ReportType: "CAFR", ExtractedAt: time.Now()},
	}
}

type fixture struct {
	st         *store.MemStore
	text       *stubText
	optical    *stubOptical
	semantic   *stubSemantic
	serializer *stubSerializer
	blobs      *memBlobs
	orch       *Orchestrator
	notifier   *status.Notifier
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	f := &fixture{
		st:         store.NewMemStore(),
		text:       &stubText{},
		optical:    &stubOptical{},
		semantic:   &stubSemantic{data: financialData(1, 1)},
		serializer: &stubSerializer{out: []byte("csv")},
		blobs:      newMemBlobs(),
		notifier:   status.NewNotifier(),
	}
	f.orch = NewOrchestrator(cfg, f.st, f.text, f.optical, f.semantic, f.serializer, f.blobs, f.notifier, nil)
	return f
}

// seedDocument mirrors what the upload boundary does: document in
// processing, five steps with upload pre-completed.
func (f *fixture) seedDocument(t *testing.T) *entity.Document {
	t.Helper()
	ctx := context.Background()

	src := filepath.Join(t.TempDir(), "in.pdf")
	require.NoError(t, os.WriteFile(src, []byte("%PDF-"), 0o644))

	doc, err := f.st.CreateDocument(ctx, &entity.Document{
		OwnerID:      1,
		Filename:     "report.pdf",
		OriginalSize: 5,
		Status:       constants.DocProcessing,
		SourcePath:   src,
	})
	require.NoError(t, err)

	for _, name := range constants.PipelineSteps {
		st := constants.StepPending
		if name == constants.StepUpload {
			st = constants.StepCompleted
		}
		_, err := f.st.CreateStep(ctx, &entity.Step{DocumentID: doc.ID, StepName: name, Status: st})
		require.NoError(t, err)
	}
	return doc
}

func (f *fixture) stepsByName(t *testing.T, documentID int64) map[constants.StepName]*entity.Step {
	t.Helper()
	steps, err := f.st.ListStepsByDocument(context.Background(), documentID)
	require.NoError(t, err)
	byName := make(map[constants.StepName]*entity.Step, len(steps))
	for _, s := range steps {
		byName[s.StepName] = s
	}
	return byName
}

func requireTerminalInvariant(t *testing.T, doc *entity.Document) {
	t.Helper()
	if doc.Status.Terminal() {
		require.NotNil(t, doc.CompletedAt)
	} else {
		require.Nil(t, doc.CompletedAt)
	}
	if doc.Status == constants.DocError {
		require.NotNil(t, doc.ErrorMessage)
		require.NotEmpty(t, *doc.ErrorMessage)
	}
	if doc.Status == constants.DocCompleted {
		require.NotNil(t, doc.RecordCount)
		require.NotNil(t, doc.ArtifactRef)
	}
}

func TestRunStraightThrough(t *testing.T) {
	f := newFixture(t, Config{MinTextWords: 50})
	f.text.text = strings.Repeat("revenue figures ", 2500) // ~5000 words
	f.semantic.data = financialData(12, 8)
	doc := f.seedDocument(t)

	require.NoError(t, f.orch.Run(context.Background(), doc.ID))

	got, err := f.st.GetDocument(context.Background(), doc.ID)
	require.NoError(t, err)
	require.Equal(t, constants.DocCompleted, got.Status)
	requireTerminalInvariant(t, got)
	require.Equal(t, 20, *got.RecordCount)
	require.Contains(t, f.blobs.m, *got.ArtifactRef)

	steps := f.stepsByName(t, doc.ID)
	require.Equal(t, constants.StepCompleted, steps[constants.StepTextExtract].Status)
	require.Equal(t, constants.StepPending, steps[constants.StepOpticalFallback].Status)
	require.Equal(t, constants.StepCompleted, steps[constants.StepSemanticExtract].Status)
	require.Equal(t, constants.StepCompleted, steps[constants.StepSerialize].Status)
	require.Zero(t, f.optical.calls)
}

func TestRunFallbackOnEmptyText(t *testing.T) {
	f := newFixture(t, Config{MinTextWords: 50})
	f.text.text = ""
	f.optical.text = strings.Repeat("scanned ledger ", 100)
	doc := f.seedDocument(t)

	require.NoError(t, f.orch.Run(context.Background(), doc.ID))

	steps := f.stepsByName(t, doc.ID)
	require.Equal(t, constants.StepCompleted, steps[constants.StepTextExtract].Status)
	require.Equal(t, constants.StepCompleted, steps[constants.StepOpticalFallback].Status)
	require.Equal(t, 1, f.optical.calls)
	require.Equal(t, f.optical.text, f.semantic.seen)

	got, err := f.st.GetDocument(context.Background(), doc.ID)
	require.NoError(t, err)
	require.Equal(t, constants.DocCompleted, got.Status)
}

func TestRunFallbackOnShortText(t *testing.T) {
	f := newFixture(t, Config{MinTextWords: 50})
	f.text.text = "only ten words of content here nothing else to say" // 10 words
	f.optical.text = strings.Repeat("scanned ledger ", 100)
	doc := f.seedDocument(t)

	require.NoError(t, f.orch.Run(context.Background(), doc.ID))

	require.Equal(t, 1, f.optical.calls)
	steps := f.stepsByName(t, doc.ID)
	require.Equal(t, constants.StepCompleted, steps[constants.StepOpticalFallback].Status)
}

func TestRunFallbackOnTextError(t *testing.T) {
	f := newFixture(t, Config{MinTextWords: 50})
	f.text.err = errors.New("encrypted pdf")
	f.optical.text = strings.Repeat("scanned ledger ", 100)
	doc := f.seedDocument(t)

	require.NoError(t, f.orch.Run(context.Background(), doc.ID))

	steps := f.stepsByName(t, doc.ID)
	require.Equal(t, constants.StepError, steps[constants.StepTextExtract].Status)
	require.Equal(t, "encrypted pdf", *steps[constants.StepTextExtract].ErrorMessage)
	require.Equal(t, constants.StepCompleted, steps[constants.StepOpticalFallback].Status)

	got, err := f.st.GetDocument(context.Background(), doc.ID)
	require.NoError(t, err)
	require.Equal(t, constants.DocCompleted, got.Status)
}

func TestRunNoTextAnywhere(t *testing.T) {
	f := newFixture(t, Config{MinTextWords: 50})
	f.text.text = ""
	f.optical.text = "   "
	doc := f.seedDocument(t)

	require.NoError(t, f.orch.Run(context.Background(), doc.ID))

	got, err := f.st.GetDocument(context.Background(), doc.ID)
	require.NoError(t, err)
	require.Equal(t, constants.DocError, got.Status)
	require.Equal(t, MsgNoText, *got.ErrorMessage)
	requireTerminalInvariant(t, got)

	steps := f.stepsByName(t, doc.ID)
	require.Equal(t, constants.StepPending, steps[constants.StepSemanticExtract].Status)
	require.Equal(t, constants.StepPending, steps[constants.StepSerialize].Status)
	require.Zero(t, f.semantic.calls)
	require.Zero(t, f.serializer.calls)
}

func TestRunOpticalFailure(t *testing.T) {
	f := newFixture(t, Config{MinTextWords: 50})
	f.text.err = errors.New("parse failed")
	f.optical.err = errors.New("tesseract exited 1")
	doc := f.seedDocument(t)

	require.NoError(t, f.orch.Run(context.Background(), doc.ID))

	steps := f.stepsByName(t, doc.ID)
	require.Equal(t, constants.StepError, steps[constants.StepOpticalFallback].Status)
	require.Equal(t, "tesseract exited 1", *steps[constants.StepOpticalFallback].ErrorMessage)

	got, err := f.st.GetDocument(context.Background(), doc.ID)
	require.NoError(t, err)
	require.Equal(t, constants.DocError, got.Status)
	require.Equal(t, MsgNoText, *got.ErrorMessage)
}

func TestRunSemanticFailure(t *testing.T) {
	f := newFixture(t, Config{MinTextWords: 1})
	f.text.text = strings.Repeat("words ", 100)
	f.semantic.err = errors.New("rate limited")
	doc := f.seedDocument(t)

	require.NoError(t, f.orch.Run(context.Background(), doc.ID))

	steps := f.stepsByName(t, doc.ID)
	require.Equal(t, constants.StepError, steps[constants.StepSemanticExtract].Status)
	require.Equal(t, "rate limited", *steps[constants.StepSemanticExtract].ErrorMessage)
	require.Equal(t, constants.StepPending, steps[constants.StepSerialize].Status)

	got, err := f.st.GetDocument(context.Background(), doc.ID)
	require.NoError(t, err)
	require.Equal(t, constants.DocError, got.Status)
	require.Equal(t, "rate limited", *got.ErrorMessage)
	requireTerminalInvariant(t, got)
}

func TestRunSerializeFailure(t *testing.T) {
	f := newFixture(t, Config{MinTextWords: 1})
	f.text.text = strings.Repeat("words ", 100)
	f.serializer.err = errors.New("workbook too large")
	doc := f.seedDocument(t)

	require.NoError(t, f.orch.Run(context.Background(), doc.ID))

	steps := f.stepsByName(t, doc.ID)
	require.Equal(t, constants.StepError, steps[constants.StepSerialize].Status)

	got, err := f.st.GetDocument(context.Background(), doc.ID)
	require.NoError(t, err)
	require.Equal(t, constants.DocError, got.Status)
	require.Equal(t, "workbook too large", *got.ErrorMessage)
}

func TestRunTerminalDocumentIsNoOp(t *testing.T) {
	f := newFixture(t, Config{MinTextWords: 1})
	doc := f.seedDocument(t)

	now := time.Now().UTC()
	completed := constants.DocCompleted
	count := 3
	ref := "3_output.csv"
	_, err := f.st.UpdateDocument(context.Background(), doc.ID, store.DocumentUpdate{
		Status: &completed, CompletedAt: &now, RecordCount: &count, ArtifactRef: &ref,
	})
	require.NoError(t, err)

	require.NoError(t, f.orch.Run(context.Background(), doc.ID))

	require.Zero(t, f.text.calls)
	require.Zero(t, f.semantic.calls)
	steps := f.stepsByName(t, doc.ID)
	require.Equal(t, constants.StepPending, steps[constants.StepTextExtract].Status)
}

func TestRunCleansUpSourceBytes(t *testing.T) {
	for _, tc := range []struct {
		name string
		prep func(f *fixture)
	}{
		{"success", func(f *fixture) { f.text.text = strings.Repeat("w ", 100) }},
		{"failure", func(f *fixture) {
			f.text.text = ""
			f.optical.err = errors.New("boom")
		}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, Config{MinTextWords: 1})
			tc.prep(f)
			doc := f.seedDocument(t)

			require.NoError(t, f.orch.Run(context.Background(), doc.ID))

			_, err := os.Stat(doc.SourcePath)
			require.True(t, os.IsNotExist(err), "source bytes should be released")
		})
	}
}

func TestRunMissingDocumentReturnsError(t *testing.T) {
	f := newFixture(t, Config{})
	err := f.orch.Run(context.Background(), 42)
	require.Error(t, err)
}

func TestRunPublishesTransitions(t *testing.T) {
	f := newFixture(t, Config{MinTextWords: 1})
	f.text.text = strings.Repeat("words ", 100)
	doc := f.seedDocument(t)

	events, cancel := f.notifier.Subscribe(doc.ID)
	defer cancel()

	require.NoError(t, f.orch.Run(context.Background(), doc.ID))

	// text_extract processing/completed, semantic processing/completed,
	// serialize processing/completed, then the terminal document event.
	var kinds []status.EventKind
	for i := 0; i < 7; i++ {
		select {
		case ev := <-events:
			kinds = append(kinds, ev.Kind)
		case <-time.After(time.Second):
			t.Fatalf("expected 7 events, got %d", len(kinds))
		}
	}
	require.Equal(t, status.EventDocument, kinds[len(kinds)-1])
}
