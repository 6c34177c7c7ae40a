package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	audit "audittrail/pkg/platform/audit"
	"audittrail/pkg/platform/sentinel"
)

// InMemoryStore keeps records in arrival order. Used by tests and the dev server.
type InMemoryStore struct {
	mu      sync.RWMutex
	records []audit.Record
	byID    map[uuid.UUID]int
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{byID: make(map[uuid.UUID]int)}
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = nil
	s.byID = make(map[uuid.UUID]int)
}

// Append stores a record. Re-appending a known ID is a no-op, like the SQL materializer.
func (s *InMemoryStore) Append(_ context.Context, record audit.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[record.ID]; ok {
		return nil
	}
	s.byID[record.ID] = len(s.records)
	s.records = append(s.records, record)
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, id uuid.UUID) (audit.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.byID[id]
	if !ok {
		return audit.Record{}, fmt.Errorf("audit record %s: %w", id, sentinel.ErrNotFound)
	}
	return s.records[i], nil
}

// ListAll returns every record in arrival order.
func (s *InMemoryStore) ListAll(_ context.Context) ([]audit.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Record{}, s.records...), nil
}

// ListRecent returns up to limit records, most recent first.
func (s *InMemoryStore) ListRecent(_ context.Context, limit int) ([]audit.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > len(s.records) {
		limit = len(s.records)
	}
	out := make([]audit.Record, 0, limit)
	for i := len(s.records) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.records[i])
	}
	return out, nil
}
