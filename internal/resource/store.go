package resource

import "sync"

// Reader is the read-only view of a Store used by the connection
// orchestrator and the API layer.
type Reader interface {
	Get(c Collection, id string) (Resource, bool)
	List(c Collection) []Resource
	Snapshot() Snapshot
}

// collection is one ordered sequence plus an id index.
type collection struct {
	items []Resource
	index map[string]int // id -> position in items
}

func newCollection(list []Resource) *collection {
	col := &collection{
		items: make([]Resource, 0, len(list)),
		index: make(map[string]int, len(list)),
	}
	for _, r := range list {
		col.upsert(r.Clone())
	}
	return col
}

// upsert replaces in place when id is known, else appends.
func (col *collection) upsert(r Resource) bool {
	id := r.ID()
	if i, ok := col.index[id]; ok {
		col.items[i] = r
		return true
	}
	col.index[id] = len(col.items)
	col.items = append(col.items, r)
	return false
}

func (col *collection) remove(id string) bool {
	i, ok := col.index[id]
	if !ok {
		return false
	}
	copy(col.items[i:], col.items[i+1:])
	col.items[len(col.items)-1] = nil
	col.items = col.items[:len(col.items)-1]
	delete(col.index, id)
	for j := i; j < len(col.items); j++ {
		col.index[col.items[j].ID()] = j
	}
	return true
}

// Store is the in-memory mirror of a registry's resource graph.
//
// Each collection keeps insertion order and holds at most one record per
// id: updates replace in place. Callers always receive deep copies.
//
// All public methods are thread-safe.
type Store struct {
	mu          sync.RWMutex
	collections map[Collection]*collection
}

// NewStore creates an empty Store.
func NewStore() *Store {
	s := &Store{collections: make(map[Collection]*collection, 5)}
	for _, c := range Collections() {
		s.collections[c] = newCollection(nil)
	}
	return s
}

// Snapshot returns a deep copy of every collection. Slices are never nil.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var snap Snapshot
	for _, c := range Collections() {
		snap.Set(c, cloneList(s.collections[c].items))
	}
	return snap
}

// List returns a deep copy of collection c in store order.
func (s *Store) List(c Collection) []Resource {
	s.mu.RLock()
	defer s.mu.RUnlock()

	col, ok := s.collections[c]
	if !ok {
		return []Resource{}
	}
	return cloneList(col.items)
}

// Get returns a copy of the record with id in collection c.
func (s *Store) Get(c Collection, id string) (Resource, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	col, ok := s.collections[c]
	if !ok {
		return nil, false
	}
	i, ok := col.index[id]
	if !ok {
		return nil, false
	}
	return col.items[i].Clone(), true
}

// Len returns the number of records in c.
func (s *Store) Len(c Collection) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if col, ok := s.collections[c]; ok {
		return len(col.items)
	}
	return 0
}

// Replace swaps in every collection of snap at once. Prior content is
// discarded, not merged. Records sharing an id within one collection
// collapse to the last one.
func (s *Store) Replace(snap Snapshot) {
	fresh := make(map[Collection]*collection, 5)
	for _, c := range Collections() {
		fresh[c] = newCollection(snap.Get(c))
	}

	s.mu.Lock()
	s.collections = fresh
	s.mu.Unlock()
}

// Upsert stores a copy of r in c, replacing a record with the same id in
// place or appending. It reports whether a record was replaced.
func (s *Store) Upsert(c Collection, r Resource) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	col, ok := s.collections[c]
	if !ok {
		return false
	}
	return col.upsert(r.Clone())
}

// Remove deletes the record with id from c and reports whether it existed.
func (s *Store) Remove(c Collection, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	col, ok := s.collections[c]
	if !ok {
		return false
	}
	return col.remove(id)
}

func cloneList(list []Resource) []Resource {
	out := make([]Resource, len(list))
	for i, r := range list {
		out[i] = r.Clone()
	}
	return out
}
