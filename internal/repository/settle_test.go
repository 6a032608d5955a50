package repository

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dshills/gitstate/internal/cache"
)

func TestSettleTimer_FiresOnceAfterQuiet(t *testing.T) {
	var fired atomic.Int32
	st := newSettleTimer(30*time.Millisecond, 0, func() { fired.Add(1) })

	for range 5 {
		st.Call()
		time.Sleep(5 * time.Millisecond)
	}
	assert.Zero(t, fired.Load())
	assert.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(1), fired.Load())
}

func TestSettleTimer_MaxWait(t *testing.T) {
	var fired atomic.Int32
	st := newSettleTimer(40*time.Millisecond, 100*time.Millisecond, func() { fired.Add(1) })

	deadline := time.Now().Add(300 * time.Millisecond)
	for time.Now().Before(deadline) && fired.Load() == 0 {
		st.Call()
		time.Sleep(10 * time.Millisecond)
	}
	assert.Equal(t, int32(1), fired.Load())
	st.Cancel()
}

func TestSettleTimer_Cancel(t *testing.T) {
	var fired atomic.Int32
	st := newSettleTimer(20*time.Millisecond, 0, func() { fired.Add(1) })
	st.Call()
	st.Cancel()
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, fired.Load())
}

func TestSuppressor(t *testing.T) {
	now := time.Unix(1000, 0)
	s := newSuppressor(cache.DefaultGraph(), 200*time.Millisecond)
	s.now = func() time.Time { return now }

	all := cache.AllSet()
	assert.Equal(t, all, s.filter(all, now))

	opStart := now
	scope := s.begin(cache.NewSet(cache.CurrentBranch))
	assert.Equal(t, cache.NewSet(
		cache.CurrentBranch, cache.AheadBehind, cache.Log, cache.Status,
		cache.Locks, cache.WorkingTree,
	), scope)
	outside := cache.NewSet(cache.LocalBranches, cache.RemoteBranches, cache.Remotes)
	assert.Equal(t, outside, s.filter(all, now))

	now = now.Add(50 * time.Millisecond)
	s.end(scope)
	now = now.Add(100 * time.Millisecond)

	// the batch of the operation's own writes arrives late
	assert.Equal(t, outside, s.filter(all, opStart.Add(20*time.Millisecond)))

	// an edit made after the operation ended passes
	assert.Equal(t, all, s.filter(all, now))

	// past the window nothing is attributed to the operation
	now = now.Add(200 * time.Millisecond)
	assert.Equal(t, all, s.filter(all, opStart))
}

func TestSuppressor_ZeroStartMeansNow(t *testing.T) {
	now := time.Unix(1000, 0)
	s := newSuppressor(cache.DefaultGraph(), time.Second)
	s.now = func() time.Time { return now }

	s.end(s.begin(cache.NewSet(cache.Status)))
	now = now.Add(time.Second / 2)
	assert.True(t, s.filter(cache.NewSet(cache.Status), time.Time{}).Has(cache.Status))
}

func TestSuppressor_WorkingTreeOnlyWithStatus(t *testing.T) {
	s := newSuppressor(cache.DefaultGraph(), time.Second)
	scope := s.scope(cache.NewSet(cache.LocalBranches))
	assert.False(t, scope.Has(cache.WorkingTree))
	assert.True(t, scope.Has(cache.Locks))

	scope = s.scope(cache.NewSet(cache.Status))
	assert.True(t, scope.Has(cache.WorkingTree))
}

func TestSuppressor_Overlapping(t *testing.T) {
	now := time.Unix(1000, 0)
	s := newSuppressor(cache.DefaultGraph(), time.Second)
	s.now = func() time.Time { return now }

	a := s.begin(cache.NewSet(cache.Remotes))
	b := s.begin(cache.NewSet(cache.Remotes))
	now = now.Add(time.Second)
	s.end(a)
	assert.False(t, s.filter(cache.NewSet(cache.Remotes), now).Has(cache.Remotes))

	now = now.Add(time.Second)
	s.end(b)
	now = now.Add(time.Millisecond * 100)
	assert.True(t, s.filter(cache.NewSet(cache.Remotes), now).Has(cache.Remotes))
	assert.False(t, s.filter(cache.NewSet(cache.Remotes), now.Add(-time.Second)).Has(cache.Remotes))
}
