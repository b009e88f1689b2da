// Package memory provides an in-memory catalog store used for tests and
// ephemeral deployments, and as the working set of the snapshotting SQL stores.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"framegrid/internal/catalog"
)

// Compile-time contract assertion.
var _ catalog.Store = (*Store)(nil)

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Records map[int64]catalog.Record `json:"records"`
	NextID  int64                    `json:"next_id"`
}

// Store keeps dataset records in memory.
type Store struct {
	mu      sync.RWMutex
	records map[int64]catalog.Record
	nextID  int64
	nowFn   func() time.Time
}

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{
		records: make(map[int64]catalog.Record),
		nextID:  1,
		nowFn:   func() time.Time { return time.Now().UTC() },
	}
}

// SetNowFunc overrides the clock used for timestamps.
func (s *Store) SetNowFunc(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn != nil {
		s.nowFn = fn
	}
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := Snapshot{Records: make(map[int64]catalog.Record, len(s.records)), NextID: s.nextID}
	for id, rec := range s.records {
		out.Records[id] = rec.Clone()
	}
	return out
}

// ImportState replaces the store state with the provided snapshot. A missing
// or stale NextID is repaired from the highest record id.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[int64]catalog.Record, len(snapshot.Records))
	next := snapshot.NextID
	for id, rec := range snapshot.Records {
		rec.ID = id
		s.records[id] = rec.Clone()
		if id >= next {
			next = id + 1
		}
	}
	if next < 1 {
		next = 1
	}
	s.nextID = next
}

// Create stores rec under a fresh id.
func (s *Store) Create(_ context.Context, rec catalog.Record) (catalog.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.nowFn()
	rec = rec.Clone()
	rec.ID = s.nextID
	s.nextID++
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	s.records[rec.ID] = rec
	return rec.Clone(), nil
}

// Get returns the record with id.
func (s *Store) Get(_ context.Context, id int64) (catalog.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return catalog.Record{}, fmt.Errorf("%w: %d", catalog.ErrNotFound, id)
	}
	return rec.Clone(), nil
}

// List returns every record ordered by id.
func (s *Store) List(_ context.Context) ([]catalog.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]catalog.Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Update applies fn to a copy of the record and stores the result when fn
// succeeds. The id and creation time cannot be changed.
func (s *Store) Update(_ context.Context, id int64, fn func(*catalog.Record) error) (catalog.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.records[id]
	if !ok {
		return catalog.Record{}, fmt.Errorf("%w: %d", catalog.ErrNotFound, id)
	}
	next := current.Clone()
	if err := fn(&next); err != nil {
		return catalog.Record{}, err
	}
	next.ID = current.ID
	next.CreatedAt = current.CreatedAt
	next.UpdatedAt = s.nowFn()
	s.records[id] = next
	return next.Clone(), nil
}

// Delete removes the record and returns it.
func (s *Store) Delete(_ context.Context, id int64) (catalog.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return catalog.Record{}, fmt.Errorf("%w: %d", catalog.ErrNotFound, id)
	}
	delete(s.records, id)
	return rec, nil
}
