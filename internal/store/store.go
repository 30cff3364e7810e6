// Package store holds the in-memory collection snapshots and the merge
// rule that reconciles the three sources feeding them: the initial bulk
// fetch, live change-feed deliveries, and optimistic local mutations.
package store

import "sync"

// Keyed matches the model record kinds; duplicated here as a tiny local
// interface so the store does not depend on the domain package.
type Keyed interface {
	Key() string
}

// Op tags a change event.
type Op int

const (
	OpInsert Op = iota
	OpUpdate
	OpDelete
)

func (o Op) String() string {
	switch o {
	case OpInsert:
		return "insert"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	}
	return "unknown"
}

// Change is one tagged change event. Insert and update carry the
// authoritative post-change value; delete carries only the id.
type Change[T Keyed] struct {
	Op    Op
	Value T      // valid for OpInsert / OpUpdate
	ID    string // valid for OpDelete
}

// Inserted builds an insert change.
func Inserted[T Keyed](v T) Change[T] { return Change[T]{Op: OpInsert, Value: v} }

// Updated builds an update change.
func Updated[T Keyed](v T) Change[T] { return Change[T]{Op: OpUpdate, Value: v} }

// Deleted builds a delete change.
func Deleted[T Keyed](id string) Change[T] { return Change[T]{Op: OpDelete, ID: id} }

// Store is one collection snapshot: an id-keyed map that preserves
// insertion order for stable iteration. Feed deliveries and local
// mutations go through the same merge (Apply), so the two realistic
// races — local write then feed echo, and feed racing ahead of the
// fetch — both converge to upsert-by-id, last applied wins.
//
// All operations are synchronous and in-memory; the mutex only guards
// against a feed delivery overlapping a local mutation, it never blocks
// on I/O.
type Store[T Keyed] struct {
	mu     sync.RWMutex
	order  []string
	items  map[string]T
	notify func()
}

// New returns an empty store.
func New[T Keyed]() *Store[T] {
	return &Store[T]{items: make(map[string]T)}
}

// OnChange registers a callback invoked after every mutation, outside the
// store lock. Used by screens to re-derive view data; at most one.
func (s *Store[T]) OnChange(fn func()) {
	s.mu.Lock()
	s.notify = fn
	s.mu.Unlock()
}

// ApplyFetch replaces the snapshot wholesale with the fetch result.
// Called once per subscription session. Duplicate ids in the fetch
// result collapse to the last occurrence.
func (s *Store[T]) ApplyFetch(items []T) {
	s.mu.Lock()
	s.order = s.order[:0]
	s.items = make(map[string]T, len(items))
	for _, it := range items {
		id := it.Key()
		if _, ok := s.items[id]; !ok {
			s.order = append(s.order, id)
		}
		s.items[id] = it
	}
	fn := s.notify
	s.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// Apply merges one change event into the snapshot:
//
//   - insert / update: upsert by id, later value wins, never a duplicate
//     entry (an update for an id the fetch has not delivered yet inserts it);
//   - delete: remove if present, no-op otherwise.
func (s *Store[T]) Apply(ch Change[T]) {
	s.mu.Lock()
	switch ch.Op {
	case OpInsert, OpUpdate:
		id := ch.Value.Key()
		if _, ok := s.items[id]; !ok {
			s.order = append(s.order, id)
		}
		s.items[id] = ch.Value
	case OpDelete:
		if _, ok := s.items[ch.ID]; ok {
			delete(s.items, ch.ID)
			s.order = removeID(s.order, ch.ID)
		}
	}
	fn := s.notify
	s.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// Get returns the value stored under id.
func (s *Store[T]) Get(id string) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.items[id]
	return v, ok
}

// Len returns the number of entries.
func (s *Store[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Snapshot returns the current entries in insertion order. The slice is a
// copy; callers may hold it across further mutations.
func (s *Store[T]) Snapshot() []T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]T, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.items[id])
	}
	return out
}

// Clear empties the snapshot. Called when the owning session closes; the
// snapshot's lifetime matches the screen's mounted duration.
func (s *Store[T]) Clear() {
	s.mu.Lock()
	s.order = s.order[:0]
	s.items = make(map[string]T)
	fn := s.notify
	s.mu.Unlock()

	if fn != nil {
		fn()
	}
}

func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
