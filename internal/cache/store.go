package cache

import (
	"sync"
	"sync/atomic"
	"time"
)

// Token identifies one refresh of one category. It records the invalidation
// generation the refresh was started for.
type Token struct {
	Category Category
	gen      uint64
}

// entry is the cached state of one category. Each entry has its own lock;
// writes to different categories never contend.
type entry struct {
	mu sync.Mutex

	value     any
	version   uint64
	updatedAt time.Time

	// gen is bumped on every effective invalidation.
	gen      uint64
	stale    bool
	inFlight bool
	// failed marks a refresh that errored; the category is not due again
	// until it is invalidated once more.
	failed bool
}

// Entry is a read-only view of a cache entry.
type Entry struct {
	Category  Category
	Value     any
	Version   uint64
	Stale     bool
	UpdatedAt time.Time
}

// Store holds the last known value of each category.
//
// Entries are created lazily on first access and start stale with version 0.
// A value written with Set is only accepted if no invalidation arrived since
// the refresh began; otherwise the write is dropped and the entry stays stale.
type Store struct {
	graph   *Graph
	entries [numCategories]atomic.Pointer[entry]
}

// NewStore creates a store using the given dependency graph.
// A nil graph means DefaultGraph.
func NewStore(g *Graph) *Store {
	if g == nil {
		g = DefaultGraph()
	}
	return &Store{graph: g}
}

// Graph returns the dependency graph of the store.
func (s *Store) Graph() *Graph {
	return s.graph
}

func (s *Store) entry(c Category) *entry {
	slot := &s.entries[c]
	if e := slot.Load(); e != nil {
		return e
	}
	fresh := &entry{stale: true}
	if slot.CompareAndSwap(nil, fresh) {
		return fresh
	}
	return slot.Load()
}

// Get returns the last successfully refreshed value of c and its version.
// Version 0 means the category has never been refreshed.
func (s *Store) Get(c Category) (any, uint64) {
	if !c.Valid() {
		return nil, 0
	}
	e := s.entry(c)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.value, e.version
}

// Value returns the value of c asserted to T. ok is false if the category has
// no value yet or holds a different type.
func Value[T any](s *Store, c Category) (v T, version uint64, ok bool) {
	raw, version := s.Get(c)
	v, ok = raw.(T)
	return v, version, ok
}

// Snapshot returns a view of c.
func (s *Store) Snapshot(c Category) Entry {
	e := s.entry(c)
	e.mu.Lock()
	defer e.mu.Unlock()
	return Entry{
		Category:  c,
		Value:     e.value,
		Version:   e.version,
		Stale:     e.stale,
		UpdatedAt: e.updatedAt,
	}
}

// IsStale reports whether c needs a refresh.
func (s *Store) IsStale(c Category) bool {
	if !c.Valid() {
		return false
	}
	e := s.entry(c)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stale
}

// Invalidate marks the given categories and everything reachable from them
// in the dependency graph stale. The closure is computed once for the whole
// batch. It returns the categories whose state actually changed: an entry that
// is already stale with no refresh in flight is left alone, while an entry
// with a refresh in flight gets a new generation so that refresh is rejected.
func (s *Store) Invalidate(cats ...Category) Set {
	closure := s.graph.Closure(NewSet(cats...))

	var changed Set
	for _, c := range closure.Slice() {
		e := s.entry(c)
		e.mu.Lock()
		switch {
		case e.inFlight:
			e.gen++
			e.stale = true
			e.failed = false
			changed = changed.With(c)
		case e.stale && !e.failed:
			// already waiting for a refresh
		default:
			e.gen++
			e.stale = true
			e.failed = false
			changed = changed.With(c)
		}
		e.mu.Unlock()
	}
	return changed
}

// Begin starts a refresh of c. It returns false if c is not stale or a
// refresh is already running.
func (s *Store) Begin(c Category) (Token, bool) {
	if !c.Valid() {
		return Token{}, false
	}
	e := s.entry(c)
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.stale || e.inFlight {
		return Token{}, false
	}
	e.inFlight = true
	e.failed = false
	return Token{Category: c, gen: e.gen}, true
}

// Set stores the result of the refresh identified by tok. The value is only
// accepted if the category was not invalidated since Begin; in that case
// the version is incremented, staleness cleared and true returned.
func (s *Store) Set(tok Token, value any) bool {
	if !tok.Category.Valid() {
		return false
	}
	e := s.entry(tok.Category)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.inFlight = false
	if tok.gen != e.gen {
		return false
	}
	e.value = value
	e.version++
	e.updatedAt = time.Now()
	e.stale = false
	return true
}

// Acknowledge clears staleness for tok without touching the value or
// version. It is used for categories that have nothing to refresh.
func (s *Store) Acknowledge(tok Token) bool {
	if !tok.Category.Valid() {
		return false
	}
	e := s.entry(tok.Category)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.inFlight = false
	if tok.gen != e.gen {
		return false
	}
	e.stale = false
	return true
}

// Abandon ends a failed refresh. The category stays stale with its previous
// value but is not due again until it is invalidated once more.
func (s *Store) Abandon(tok Token) {
	if !tok.Category.Valid() {
		return
	}
	e := s.entry(tok.Category)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.inFlight = false
	if tok.gen == e.gen {
		e.failed = true
	}
}

// Stale returns every stale category.
func (s *Store) Stale() Set {
	var out Set
	for _, c := range All() {
		if s.IsStale(c) {
			out = out.With(c)
		}
	}
	return out
}

// Due returns the categories that are stale, have no refresh in flight and
// did not fail their last refresh.
func (s *Store) Due() Set {
	var out Set
	for _, c := range All() {
		e := s.entry(c)
		e.mu.Lock()
		if e.stale && !e.inFlight && !e.failed {
			out = out.With(c)
		}
		e.mu.Unlock()
	}
	return out
}

// InFlight returns the categories with a refresh running.
func (s *Store) InFlight() Set {
	var out Set
	for _, c := range All() {
		e := s.entry(c)
		e.mu.Lock()
		if e.inFlight {
			out = out.With(c)
		}
		e.mu.Unlock()
	}
	return out
}

// Reset drops every entry. Used on repository teardown.
func (s *Store) Reset() {
	for i := range s.entries {
		s.entries[i].Store(nil)
	}
}
