package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cuongbtq/vaulty/internal/domain"
)

// MemoryStore keeps entries for the lifetime of the process
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*domain.Entry
	now     func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory ledger
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*domain.Entry),
		now:     time.Now,
	}
}

// NewMemoryStoreFrom seeds a ledger with entries, e.g. read from a snapshot
func NewMemoryStoreFrom(entries []domain.Entry) *MemoryStore {
	s := NewMemoryStore()
	for i := range entries {
		e := entries[i]
		s.entries[e.Key] = &e
	}
	return s
}

func (s *MemoryStore) Get(_ context.Context, key string) (*domain.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, domain.ErrEntryNotFound
	}
	cp := *e
	return &cp, nil
}

func (s *MemoryStore) PutSuccess(_ context.Context, key string, outcome domain.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		e = &domain.Entry{Key: key}
		s.entries[key] = e
	}
	if e.Succeeded() {
		return domain.ErrAlreadyTransferred
	}

	if outcome.RecordedAt.IsZero() {
		outcome.RecordedAt = s.now().UTC()
	}
	e.Response = &outcome
	return nil
}

func (s *MemoryStore) RecordAttempt(_ context.Context, key, source string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		e = &domain.Entry{Key: key}
		s.entries[key] = e
	}
	if source != "" {
		e.Source = source
	}
	e.Attempts++
	return nil
}

func (s *MemoryStore) List(_ context.Context, afterKey string, limit int) ([]domain.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		if k > afterKey {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}

	out := make([]domain.Entry, 0, len(keys))
	for _, k := range keys {
		out = append(out, *s.entries[k])
	}
	return out, nil
}

// Len returns the number of entries
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *MemoryStore) Close() error { return nil }
