package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/PabloGalante/farum-reflect/internal/domain"
)

// RecordStore is a simple in-memory implementation of domain.RecordStore.
// It is NOT persistent and is only suitable for development / local mode.
type RecordStore struct {
	mu       sync.RWMutex
	records  map[domain.RecordID]*domain.Record
	storedAt map[domain.RecordID]time.Time
	inserts  int
	now      func() time.Time
}

// NewRecordStore creates a new in-memory RecordStore.
func NewRecordStore() *RecordStore {
	return &RecordStore{
		records:  make(map[domain.RecordID]*domain.Record),
		storedAt: make(map[domain.RecordID]time.Time),
		now:      time.Now,
	}
}

// InsertRecord stores a record once; a repeated id returns the first copy.
func (s *RecordStore) InsertRecord(_ context.Context, rec *domain.Record) (domain.Stored, error) {
	if rec == nil || rec.ID == "" {
		return domain.Stored{}, fmt.Errorf("%w: missing record id", domain.ErrRecordRejected)
	}
	if rec.UserID == "" {
		return domain.Stored{}, fmt.Errorf("%w: missing user id", domain.ErrRecordRejected)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.inserts++

	if _, exists := s.records[rec.ID]; exists {
		return domain.Stored{RecordID: rec.ID, StoredAt: s.storedAt[rec.ID], Duplicate: true}, nil
	}

	cp := *rec
	cp.Answers = rec.Answers.Clone()
	now := s.now()

	s.records[rec.ID] = &cp
	s.storedAt[rec.ID] = now

	return domain.Stored{RecordID: rec.ID, StoredAt: now}, nil
}

// Get returns a stored record.
func (s *RecordStore) Get(id domain.RecordID) (*domain.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, false
	}
	cp := *rec
	cp.Answers = rec.Answers.Clone()
	return &cp, true
}

// GetRecord implements domain.RecordReader.
func (s *RecordStore) GetRecord(_ context.Context, id domain.RecordID) (*domain.Record, error) {
	rec, ok := s.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrRecordNotFound, id)
	}
	return rec, nil
}

// Len is the number of distinct records.
func (s *RecordStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Inserts counts every insert call, duplicates included.
func (s *RecordStore) Inserts() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.inserts
}
