package remote

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Store used by tests and by demo mode when no
// Postgres is available. Writes fan out synchronously to subscribers, which
// mirrors how quickly the hosted feed echoes a write back in practice.
type MemoryStore struct {
	mu          sync.Mutex
	row         *Row
	subscribers map[int]func(Row)
	nextSub     int
	writes      int
}

// NewMemoryStore creates an empty store in the not-found state.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{subscribers: make(map[int]func(Row))}
}

// Fetch implements Store.
func (s *MemoryStore) Fetch(ctx context.Context) (Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.row == nil {
		return Row{}, ErrNotFound
	}
	return s.row.Clone(), nil
}

// Write implements Store, replacing the row and notifying every subscriber,
// the writer included.
func (s *MemoryStore) Write(ctx context.Context, row Row) error {
	s.mu.Lock()
	stored := row.Clone()
	s.row = &stored
	s.writes++
	fns := make([]func(Row), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(row.Clone())
	}
	return nil
}

// WriteCount reports how many writes have been accepted.
func (s *MemoryStore) WriteCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// Subscribe implements Store.
func (s *MemoryStore) Subscribe(ctx context.Context, fn func(Row)) (func(), error) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subscribers, id)
		s.mu.Unlock()
	}, nil
}
