package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/munifact/munifact/constants"
	"github.com/munifact/munifact/internal/common"
	"github.com/munifact/munifact/internal/entity"
)

func TestMemStoreDocumentLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	doc, err := s.CreateDocument(ctx, &entity.Document{
		OwnerID:  1,
		Filename: "report.pdf",
		Status:   constants.DocProcessing,
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), doc.ID)
	require.False(t, doc.UploadedAt.IsZero())

	got, err := s.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.Equal(t, "report.pdf", got.Filename)

	now := time.Now().UTC()
	completed := constants.DocCompleted
	count := 7
	ref := "1_output.csv"
	updated, err := s.UpdateDocument(ctx, doc.ID, DocumentUpdate{
		Status:      &completed,
		CompletedAt: &now,
		RecordCount: &count,
		ArtifactRef: &ref,
	})
	require.NoError(t, err)
	require.Equal(t, constants.DocCompleted, updated.Status)
	require.Equal(t, 7, *updated.RecordCount)
	// Untouched fields survive a partial update.
	require.Equal(t, "report.pdf", updated.Filename)

	require.NoError(t, s.DeleteDocument(ctx, doc.ID))
	_, err = s.GetDocument(ctx, doc.ID)
	require.ErrorIs(t, err, common.ErrNotFound)

	// Deleting again is not an error at this layer.
	require.NoError(t, s.DeleteDocument(ctx, doc.ID))
}

func TestMemStoreNotFound(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	_, err := s.GetDocument(ctx, 99)
	require.ErrorIs(t, err, common.ErrNotFound)

	st := constants.DocError
	_, err = s.UpdateDocument(ctx, 99, DocumentUpdate{Status: &st})
	require.ErrorIs(t, err, common.ErrNotFound)

	_, err = s.GetStep(ctx, 99)
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestMemStoreListByOwnerInsertionOrder(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	for i, name := range []string{"a.pdf", "b.pdf", "c.pdf"} {
		owner := int64(1)
		if i == 1 {
			owner = 2
		}
		_, err := s.CreateDocument(ctx, &entity.Document{OwnerID: owner, Filename: name, Status: constants.DocProcessing})
		require.NoError(t, err)
	}

	docs, err := s.ListDocumentsByOwner(ctx, 1)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	require.Equal(t, "a.pdf", docs[0].Filename)
	require.Equal(t, "c.pdf", docs[1].Filename)
}

func TestMemStoreReadsReturnCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	doc, err := s.CreateDocument(ctx, &entity.Document{OwnerID: 1, Filename: "x.pdf", Status: constants.DocProcessing})
	require.NoError(t, err)

	got, err := s.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	got.Filename = "mutated.pdf"

	again, err := s.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.Equal(t, "x.pdf", again.Filename)
}

func TestMemStoreSteps(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	doc, err := s.CreateDocument(ctx, &entity.Document{OwnerID: 1, Filename: "x.pdf", Status: constants.DocProcessing})
	require.NoError(t, err)

	for _, name := range constants.PipelineSteps {
		_, err := s.CreateStep(ctx, &entity.Step{DocumentID: doc.ID, StepName: name, Status: constants.StepPending})
		require.NoError(t, err)
	}

	steps, err := s.ListStepsByDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, steps, len(constants.PipelineSteps))
	for i, st := range steps {
		require.Equal(t, constants.PipelineSteps[i], st.StepName)
	}

	now := time.Now().UTC()
	processing := constants.StepProcessing
	updated, err := s.UpdateStep(ctx, steps[1].ID, StepUpdate{Status: &processing, StartedAt: &now})
	require.NoError(t, err)
	require.Equal(t, constants.StepProcessing, updated.Status)
	require.NotNil(t, updated.StartedAt)

	require.NoError(t, s.DeleteStepsByDocument(ctx, doc.ID))
	steps, err = s.ListStepsByDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.Empty(t, steps)
}
