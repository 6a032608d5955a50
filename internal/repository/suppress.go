package repository

import (
	"sync"
	"time"

	"github.com/dshills/gitstate/internal/cache"
)

// suppressor drops watcher categories that an operation invalidates itself.
// git touches HEAD, the index and the refs while it works; reacting to those
// writes would refresh twice.
//
// A change is dropped while an operation covering its categories runs, and
// afterwards when the watcher batch started before that operation ended.
// Batches that start after the end are user edits and always pass. The
// window only bounds how late the debounced batch of the operation's own
// writes may arrive. Success and failure are treated alike: a failed
// operation invalidates nothing, so neither do the writes git made before
// giving up.
// eventLag is how long after a write its file system event may reach the
// watcher's batcher.
const eventLag = 10 * time.Millisecond

type suppressor struct {
	graph  *cache.Graph
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	running map[cache.Category]int
	// ended is when the last operation covering a category finished.
	ended map[cache.Category]time.Time
}

func newSuppressor(g *cache.Graph, window time.Duration) *suppressor {
	return &suppressor{
		graph:   g,
		window:  window,
		now:     time.Now,
		running: make(map[cache.Category]int),
		ended:   make(map[cache.Category]time.Time),
	}
}

// scope returns what an operation invalidating set suppresses: the closure,
// lock files, and working tree writes when Status is refreshed anyway.
func (s *suppressor) scope(set cache.Set) cache.Set {
	scope := s.graph.Closure(set).With(cache.Locks)
	if scope.Has(cache.Status) {
		scope = scope.With(cache.WorkingTree)
	}
	return scope
}

// begin marks an operation as running and returns its scope for end.
func (s *suppressor) begin(set cache.Set) cache.Set {
	scope := s.scope(set)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range scope.Slice() {
		s.running[c]++
	}
	return scope
}

// end marks the operation begun with scope as finished.
func (s *suppressor) end(scope cache.Set) {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range scope.Slice() {
		s.running[c]--
		if now.After(s.ended[c]) {
			s.ended[c] = now
		}
	}
}

// filter removes from set the categories of a batch that started at start
// which an operation accounts for.
func (s *suppressor) filter(set cache.Set, start time.Time) cache.Set {
	now := s.now()
	if start.IsZero() || start.After(now) {
		start = now
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out cache.Set
	for _, c := range set.Slice() {
		if s.running[c] > 0 {
			continue
		}
		if ended := s.ended[c]; start.Before(ended.Add(eventLag)) && now.Before(ended.Add(s.window)) {
			continue
		}
		out = out.With(c)
	}
	return out
}
