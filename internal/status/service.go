package status

import (
	"context"

	"github.com/munifact/munifact/internal/entity"
	"github.com/munifact/munifact/internal/store"
)

// Service is the read path for polling clients: a thin projection over the
// artifact store with no business logic and no caching, so every read
// reflects the latest committed state.
type Service struct {
	store    store.Store
	notifier *Notifier
}

func NewService(st store.Store, notifier *Notifier) *Service {
	return &Service{store: st, notifier: notifier}
}

func (s *Service) GetDocument(ctx context.Context, id int64) (*entity.Document, error) {
	return s.store.GetDocument(ctx, id)
}

func (s *Service) ListDocuments(ctx context.Context, ownerID int64) ([]*entity.Document, error) {
	return s.store.ListDocumentsByOwner(ctx, ownerID)
}

func (s *Service) ListSteps(ctx context.Context, documentID int64) ([]*entity.Step, error) {
	return s.store.ListStepsByDocument(ctx, documentID)
}

// Watch is the push backend: transitions for one document as they commit.
// Callers must invoke cancel when done.
func (s *Service) Watch(documentID int64) (<-chan Event, func()) {
	return s.notifier.Subscribe(documentID)
}
