package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/cropharvest/internal/harvest"
)

// Store implements harvest.Store in memory with the same first-write-wins
// semantics as the SQL stores.
type Store struct {
	mu      sync.RWMutex
	records map[harvest.Key]harvest.Record
	order   []harvest.Key
	closed  bool
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{records: make(map[harvest.Key]harvest.Record)}
}

// Put stores rec unless its key is already present.
func (s *Store) Put(ctx context.Context, rec harvest.Record) (harvest.Outcome, error) {
	if rec == nil {
		return 0, &harvest.StorageError{Op: "put", Err: fmt.Errorf("record is nil")}
	}
	key := rec.Key()
	if err := ctx.Err(); err != nil {
		return 0, &harvest.StorageError{Op: "put", Key: key, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, &harvest.StorageError{Op: "put", Key: key, Err: fmt.Errorf("store is closed")}
	}
	if _, ok := s.records[key]; ok {
		return harvest.SkippedDuplicate, nil
	}
	s.records[key] = rec
	s.order = append(s.order, key)
	return harvest.Inserted, nil
}

// Get returns the stored record for key.
func (s *Store) Get(key harvest.Key) (harvest.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[key]
	return rec, ok
}

// Records returns stored records in insertion order.
func (s *Store) Records() []harvest.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]harvest.Record, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, s.records[k])
	}
	return out
}

// Close marks the store closed. Stored records stay readable.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
