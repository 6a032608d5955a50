package cache

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// refresh runs a full Begin/Set cycle for c.
func refresh(t *testing.T, s *Store, c Category, value any) {
	t.Helper()
	tok, ok := s.Begin(c)
	require.True(t, ok, "begin %s", c)
	require.True(t, s.Set(tok, value), "set %s", c)
}

func TestStore_EntriesStartStale(t *testing.T) {
	s := NewStore(nil)

	v, version := s.Get(Status)
	assert.Nil(t, v)
	assert.Zero(t, version)
	assert.True(t, s.IsStale(Status))
	assert.Equal(t, AllSet(), s.Stale())
}

func TestStore_SetIncrementsVersion(t *testing.T) {
	s := NewStore(nil)

	refresh(t, s, Log, []string{"a"})
	v, version := s.Get(Log)
	assert.Equal(t, []string{"a"}, v)
	assert.Equal(t, uint64(1), version)
	assert.False(t, s.IsStale(Log))

	s.Invalidate(Log)
	refresh(t, s, Log, []string{"b", "a"})
	_, version = s.Get(Log)
	assert.Equal(t, uint64(2), version)
}

func TestStore_Value(t *testing.T) {
	s := NewStore(nil)
	refresh(t, s, CurrentBranch, "main")

	name, version, ok := Value[string](s, CurrentBranch)
	require.True(t, ok)
	assert.Equal(t, "main", name)
	assert.Equal(t, uint64(1), version)

	_, _, ok = Value[int](s, CurrentBranch)
	assert.False(t, ok)
}

func TestStore_InvalidateClosure(t *testing.T) {
	s := NewStore(nil)
	for _, c := range All() {
		refresh(t, s, c, c.String())
	}
	require.True(t, s.Stale().Empty())

	changed := s.Invalidate(LocalBranches)

	assert.Equal(t, NewSet(LocalBranches, AheadBehind, Log), changed)
	assert.True(t, s.IsStale(LocalBranches))
	assert.True(t, s.IsStale(AheadBehind))
	assert.True(t, s.IsStale(Log))
	assert.False(t, s.IsStale(WorkingTree))
	assert.False(t, s.IsStale(Locks))
	assert.False(t, s.IsStale(Status))
}

func TestStore_ReinvalidateIsNoop(t *testing.T) {
	s := NewStore(nil)
	refresh(t, s, Locks, nil)

	first := s.Invalidate(Locks)
	second := s.Invalidate(Locks)

	assert.Equal(t, NewSet(Locks), first)
	assert.True(t, second.Empty())

	tok, ok := s.Begin(Locks)
	require.True(t, ok)
	assert.True(t, s.Set(tok, []string{"index.lock"}))
}

func TestStore_StaleWriteRejected(t *testing.T) {
	s := NewStore(nil)
	refresh(t, s, Status, "v1")
	s.Invalidate(Status)

	tok, ok := s.Begin(Status)
	require.True(t, ok)

	// a second invalidation lands while the refresh is in flight
	changed := s.Invalidate(Status)
	assert.True(t, changed.Has(Status))

	assert.False(t, s.Set(tok, "v2-stale"))
	v, version := s.Get(Status)
	assert.Equal(t, "v1", v)
	assert.Equal(t, uint64(1), version)
	assert.True(t, s.IsStale(Status))
	assert.True(t, s.Due().Has(Status))

	refresh(t, s, Status, "v3")
	v, version = s.Get(Status)
	assert.Equal(t, "v3", v)
	assert.Equal(t, uint64(2), version)
}

func TestStore_BeginRequiresStale(t *testing.T) {
	s := NewStore(nil)
	refresh(t, s, Remotes, nil)

	_, ok := s.Begin(Remotes)
	assert.False(t, ok)

	s.Invalidate(Remotes)
	_, ok = s.Begin(Remotes)
	require.True(t, ok)

	// second Begin while in flight
	_, ok = s.Begin(Remotes)
	assert.False(t, ok)
	assert.True(t, s.InFlight().Has(Remotes))
	assert.False(t, s.Due().Has(Remotes))
}

func TestStore_AbandonKeepsValue(t *testing.T) {
	s := NewStore(nil)
	refresh(t, s, Log, "old")
	s.Invalidate(Log)

	tok, ok := s.Begin(Log)
	require.True(t, ok)
	s.Abandon(tok)

	v, version := s.Get(Log)
	assert.Equal(t, "old", v)
	assert.Equal(t, uint64(1), version)
	assert.True(t, s.IsStale(Log))
	assert.False(t, s.Due().Has(Log), "failed refresh must not be retried on its own")

	changed := s.Invalidate(Log)
	assert.True(t, changed.Has(Log))
	assert.True(t, s.Due().Has(Log))
}

func TestStore_Acknowledge(t *testing.T) {
	s := NewStore(nil)

	tok, ok := s.Begin(WorkingTree)
	require.True(t, ok)
	assert.True(t, s.Acknowledge(tok))
	assert.False(t, s.IsStale(WorkingTree))

	_, version := s.Get(WorkingTree)
	assert.Zero(t, version)
}

func TestStore_Reset(t *testing.T) {
	s := NewStore(nil)
	refresh(t, s, Status, "x")
	s.Reset()

	v, version := s.Get(Status)
	assert.Nil(t, v)
	assert.Zero(t, version)
	assert.True(t, s.IsStale(Status))
}

func TestStore_ConcurrentCategories(t *testing.T) {
	s := NewStore(nil)

	var wg sync.WaitGroup
	for _, c := range All() {
		wg.Add(1)
		go func(c Category) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				s.Invalidate(c)
				if tok, ok := s.Begin(c); ok {
					s.Set(tok, i)
				}
			}
		}(c)
	}
	wg.Wait()

	for _, c := range All() {
		if tok, ok := s.Begin(c); ok {
			require.True(t, s.Set(tok, -1))
		}
		_, version := s.Get(c)
		assert.NotZero(t, version, c.String())
		assert.False(t, s.IsStale(c), c.String())
	}
}
