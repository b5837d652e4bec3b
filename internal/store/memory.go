package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/munifact/munifact/internal/common"
	"github.com/munifact/munifact/internal/entity"
)

// MemStore is the in-process reference implementation: arena-style maps
// keyed by monotonic int64 ids. Safe for concurrent use; every read returns
// a copy so callers never alias store-owned records.
type MemStore struct {
	mu        sync.RWMutex
	documents map[int64]*entity.Document
	steps     map[int64]*entity.Step
	docOrder  []int64
	stepOrder []int64
	nextDocID int64
	nextStep  int64
}

func NewMemStore() *MemStore {
	return &MemStore{
		documents: make(map[int64]*entity.Document),
		steps:     make(map[int64]*entity.Step),
		nextDocID: 1,
		nextStep:  1,
	}
}

func (s *MemStore) CreateDocument(_ context.Context, doc *entity.Document) (*entity.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := *doc
	d.ID = s.nextDocID
	s.nextDocID++
	if d.UploadedAt.IsZero() {
		d.UploadedAt = time.Now().UTC()
	}
	s.documents[d.ID] = &d
	s.docOrder = append(s.docOrder, d.ID)

	out := d
	return &out, nil
}

func (s *MemStore) GetDocument(_ context.Context, id int64) (*entity.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.documents[id]
	if !ok {
		return nil, fmt.Errorf("document %d: %w", id, common.ErrNotFound)
	}
	out := *d
	return &out, nil
}

func (s *MemStore) ListDocumentsByOwner(_ context.Context, ownerID int64) ([]*entity.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*entity.Document
	for _, id := range s.docOrder {
		d, ok := s.documents[id]
		if !ok || d.OwnerID != ownerID {
			continue
		}
		c := *d
		out = append(out, &c)
	}
	return out, nil
}

func (s *MemStore) UpdateDocument(_ context.Context, id int64, upd DocumentUpdate) (*entity.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.documents[id]
	if !ok {
		return nil, fmt.Errorf("document %d: %w", id, common.ErrNotFound)
	}
	if upd.Status != nil {
		d.Status = *upd.Status
	}
	if upd.CompletedAt != nil {
		d.CompletedAt = upd.CompletedAt
	}
	if upd.ErrorMessage != nil {
		d.ErrorMessage = upd.ErrorMessage
	}
	if upd.RecordCount != nil {
		d.RecordCount = upd.RecordCount
	}
	if upd.ArtifactRef != nil {
		d.ArtifactRef = upd.ArtifactRef
	}
	if upd.SourcePath != nil {
		d.SourcePath = *upd.SourcePath
	}
	out := *d
	return &out, nil
}

func (s *MemStore) DeleteDocument(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.documents, id)
	for i, did := range s.docOrder {
		if did == id {
			s.docOrder = append(s.docOrder[:i], s.docOrder[i+1:]...)
			break
		}
	}
	return nil
}

func (s *MemStore) CreateStep(_ context.Context, step *entity.Step) (*entity.Step, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := *step
	st.ID = s.nextStep
	s.nextStep++
	s.steps[st.ID] = &st
	s.stepOrder = append(s.stepOrder, st.ID)

	out := st
	return &out, nil
}

func (s *MemStore) GetStep(_ context.Context, id int64) (*entity.Step, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.steps[id]
	if !ok {
		return nil, fmt.Errorf("step %d: %w", id, common.ErrNotFound)
	}
	out := *st
	return &out, nil
}

func (s *MemStore) ListStepsByDocument(_ context.Context, documentID int64) ([]*entity.Step, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*entity.Step
	for _, id := range s.stepOrder {
		st, ok := s.steps[id]
		if !ok || st.DocumentID != documentID {
			continue
		}
		c := *st
		out = append(out, &c)
	}
	return out, nil
}

func (s *MemStore) UpdateStep(_ context.Context, id int64, upd StepUpdate) (*entity.Step, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.steps[id]
	if !ok {
		return nil, fmt.Errorf("step %d: %w", id, common.ErrNotFound)
	}
	if upd.Status != nil {
		st.Status = *upd.Status
	}
	if upd.StartedAt != nil {
		st.StartedAt = upd.StartedAt
	}
	if upd.CompletedAt != nil {
		st.CompletedAt = upd.CompletedAt
	}
	if upd.ErrorMessage != nil {
		st.ErrorMessage = upd.ErrorMessage
	}
	out := *st
	return &out, nil
}

func (s *MemStore) DeleteStepsByDocument(_ context.Context, documentID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.stepOrder[:0]
	for _, id := range s.stepOrder {
		st, ok := s.steps[id]
		if ok && st.DocumentID == documentID {
			delete(s.steps, id)
			continue
		}
		kept = append(kept, id)
	}
	s.stepOrder = kept
	return nil
}

func (s *MemStore) Close() error { return nil }
