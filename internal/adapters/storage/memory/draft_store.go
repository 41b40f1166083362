package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/PabloGalante/farum-reflect/internal/domain"
)

// DraftStore keeps encoded drafts in a map. Drafts round-trip through the
// same JSON blob the durable backends store, so callers never share memory
// with the store.
type DraftStore struct {
	mu     sync.RWMutex
	drafts map[domain.SessionID][]byte
}

func NewDraftStore() *DraftStore {
	return &DraftStore{
		drafts: make(map[domain.SessionID][]byte),
	}
}

func (s *DraftStore) SaveDraft(_ context.Context, draft *domain.Draft) error {
	blob, err := domain.EncodeDraft(draft)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.drafts[draft.SessionID] = blob
	return nil
}

func (s *DraftStore) LoadDraft(_ context.Context, id domain.SessionID) (*domain.Draft, error) {
	s.mu.RLock()
	blob, ok := s.drafts[id]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrDraftNotFound, id)
	}
	return domain.DecodeDraft(blob)
}

// DeleteDraft is idempotent.
func (s *DraftStore) DeleteDraft(_ context.Context, id domain.SessionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.drafts, id)
	return nil
}

// Len reports how many drafts are stored.
func (s *DraftStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.drafts)
}

// ListDrafts returns every stored draft, most recently changed first.
func (s *DraftStore) ListDrafts(_ context.Context) ([]*domain.Draft, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Draft, 0, len(s.drafts))
	for id, blob := range s.drafts {
		d, err := domain.DecodeDraft(blob)
		if err != nil {
			return nil, fmt.Errorf("draft %s: %w", id, err)
		}
		out = append(out, d)
	}
	sortByLastMutated(out)
	return out, nil
}

func sortByLastMutated(drafts []*domain.Draft) {
	sort.Slice(drafts, func(i, j int) bool {
		if drafts[i].LastMutatedAt.Equal(drafts[j].LastMutatedAt) {
			return drafts[i].SessionID < drafts[j].SessionID
		}
		return drafts[i].LastMutatedAt.After(drafts[j].LastMutatedAt)
	})
}
