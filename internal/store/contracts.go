package store

import (
	"context"
	"time"

	"github.com/munifact/munifact/constants"
	"github.com/munifact/munifact/internal/entity"
)

// DocumentUpdate is a partial update; nil fields are left untouched. The
// store merges fields verbatim and never recomputes invariants; callers are
// responsible for invariant-consistent updates.
type DocumentUpdate struct {
	Status       *constants.DocumentStatus
	CompletedAt  *time.Time
	ErrorMessage *string
	RecordCount  *int
	ArtifactRef  *string
	SourcePath   *string
}

// StepUpdate is a partial update for a step record.
type StepUpdate struct {
	Status       *constants.StepStatus
	StartedAt    *time.Time
	CompletedAt  *time.Time
	ErrorMessage *string
}

// Store is the artifact store contract: two collections (documents, steps)
// with CRUD and filtered listing. Mutations on a single record are atomic
// with respect to each other; no cross-record transactions are offered.
//
// Get and Update return common.ErrNotFound (wrapped) for absent ids.
// Delete is idempotent at this layer.
type Store interface {
	CreateDocument(ctx context.Context, doc *entity.Document) (*entity.Document, error)
	GetDocument(ctx context.Context, id int64) (*entity.Document, error)
	ListDocumentsByOwner(ctx context.Context, ownerID int64) ([]*entity.Document, error)
	UpdateDocument(ctx context.Context, id int64, upd DocumentUpdate) (*entity.Document, error)
	DeleteDocument(ctx context.Context, id int64) error

	CreateStep(ctx context.Context, step *entity.Step) (*entity.Step, error)
	GetStep(ctx context.Context, id int64) (*entity.Step, error)
	ListStepsByDocument(ctx context.Context, documentID int64) ([]*entity.Step, error)
	UpdateStep(ctx context.Context, id int64, upd StepUpdate) (*entity.Step, error)
	DeleteStepsByDocument(ctx context.Context, documentID int64) error

	Close() error
}
