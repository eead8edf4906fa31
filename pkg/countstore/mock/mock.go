// Package mock provides an in-memory recording [countstore.Store] for tests.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/tallyvox/pkg/countstore"
)

// Compile-time interface assertion.
var _ countstore.Store = (*Store)(nil)

// Call records one IncrementOrInsert invocation.
type Call struct {
	SpeakerID string
	Keyword   string
	Delta     int64
}

// Store is a thread-safe in-memory count store that records every mutation
// for later assertion.
type Store struct {
	mu     sync.Mutex
	counts map[[2]string]int64
	names  map[string]string
	calls  []Call
	closed bool

	// IncrementErr, when non-nil, is returned by every IncrementOrInsert
	// call (the in-memory state is left untouched).
	IncrementErr error

	// ReadAllErr, when non-nil, is returned by every ReadAll call.
	ReadAllErr error
}

// NewStore returns an empty recording store.
func NewStore() *Store {
	return &Store{
		counts: make(map[[2]string]int64),
		names:  make(map[string]string),
	}
}

// Seed pre-populates a count row without recording a call.
func (s *Store) Seed(speakerID, keyword string, count int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[[2]string{speakerID, keyword}] = count
}

// SeedName pre-populates a display name without recording a call.
func (s *Store) SeedName(speakerID, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.names[speakerID] = name
}

// IncrementOrInsert implements countstore.Store.
func (s *Store) IncrementOrInsert(_ context.Context, speakerID, keyword string, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.IncrementErr != nil {
		return s.IncrementErr
	}
	s.counts[[2]string{speakerID, keyword}] += delta
	s.calls = append(s.calls, Call{SpeakerID: speakerID, Keyword: keyword, Delta: delta})
	return nil
}

// UpsertName implements countstore.Store.
func (s *Store) UpsertName(_ context.Context, speakerID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.names[speakerID] = name
	return nil
}

// ReadAll implements countstore.Store.
func (s *Store) ReadAll(context.Context) ([]countstore.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ReadAllErr != nil {
		return nil, s.ReadAllErr
	}
	records := make([]countstore.Record, 0, len(s.counts))
	for k, c := range s.counts {
		records = append(records, countstore.Record{SpeakerID: k[0], Keyword: k[1], Count: c})
	}
	return records, nil
}

// ReadNames implements countstore.Store.
func (s *Store) ReadNames(context.Context) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make(map[string]string, len(s.names))
	for id, n := range s.names {
		names[id] = n
	}
	return names, nil
}

// Close implements countstore.Store.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Calls returns every recorded IncrementOrInsert invocation in order.
func (s *Store) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// Count returns the current count for the (speakerID, keyword) pair.
func (s *Store) Count(speakerID, keyword string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[[2]string{speakerID, keyword}]
}

// Name returns the recorded display name for speakerID.
func (s *Store) Name(speakerID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.names[speakerID]
}
