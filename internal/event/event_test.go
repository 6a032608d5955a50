package event

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/gitstate/internal/cache"
)

func TestTopicMatches(t *testing.T) {
	tests := []struct {
		topic   Topic
		pattern Topic
		want    bool
	}{
		{"git.status.updated", "git.status.updated", true},
		{"git.status.updated", "git.*.updated", true},
		{"git.status.updated", "git.*", false},
		{"git.status.updated", "git.**", true},
		{"git.status.updated", "**", true},
		{"git.status.updated", "**.updated", true},
		{"git.status.updated", "git.**.updated", true},
		{"git.status.updated", "git.status.updated.**", true},
		{"git.status.updated", "git.log.updated", false},
		{"git.status.updated", "*.*", false},
		{"git.status", "git.status.updated", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.topic.Matches(tt.pattern), "%s ~ %s", tt.topic, tt.pattern)
	}
}

func TestTopicValid(t *testing.T) {
	assert.True(t, Topic("git.status.updated").Valid())
	assert.True(t, Topic("**").Valid())
	assert.False(t, Topic("").Valid())
	assert.False(t, Topic("git..updated").Valid())
	assert.False(t, Topic(".git").Valid())
	assert.False(t, Topic("git.").Valid())
}

func TestKinds(t *testing.T) {
	seen := make(map[cache.Category]bool)
	for _, k := range Kinds() {
		assert.True(t, k.Topic().Valid(), k.String())
		assert.False(t, seen[k.Category()], "duplicate category for %s", k)
		seen[k.Category()] = true

		back, ok := ForCategory(k.Category())
		require.True(t, ok)
		assert.Equal(t, k, back)

		parsed, err := ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, parsed)
		parsed, err = ParseKind(k.Topic().String())
		require.NoError(t, err)
		assert.Equal(t, k, parsed)
	}
	assert.Len(t, Kinds(), 8)

	_, ok := ForCategory(cache.WorkingTree)
	assert.False(t, ok)
	_, err := ParseKind("Nope")
	assert.Error(t, err)
	assert.Equal(t, "kind(42)", Kind(42).String())

	assert.Equal(t, "GitAheadBehindStatusUpdated", GitAheadBehindStatusUpdated.String())
	assert.Equal(t, cache.AheadBehind, GitAheadBehindStatusUpdated.Category())
}

func TestNew(t *testing.T) {
	e := New(GitLogUpdated, []string{"x"}, 3, 7)
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, Topic("git.log.updated"), e.Topic)
	assert.Equal(t, uint64(3), e.Version)
	assert.Equal(t, uint64(7), e.Cycle)
	assert.False(t, e.Timestamp.IsZero())
	assert.NotEqual(t, e.ID, New(GitLogUpdated, nil, 3, 7).ID)
}

func TestDispatcher_PatternRouting(t *testing.T) {
	d := NewDispatcher(nil)
	var mu sync.Mutex
	got := map[string][]Kind{}
	record := func(name string) func(Event) {
		return func(e Event) {
			mu.Lock()
			got[name] = append(got[name], e.Kind)
			mu.Unlock()
		}
	}

	_, err := d.SubscribeFunc("git.status.updated", record("status"))
	require.NoError(t, err)
	_, err = d.SubscribeFunc("git.*-branches.updated", record("none"))
	require.NoError(t, err)
	_, err = d.SubscribeAll(HandlerFunc(record("all")))
	require.NoError(t, err)

	assert.Equal(t, 2, d.Publish(New(GitStatusUpdated, nil, 1, 1)))
	assert.Equal(t, 1, d.Publish(New(GitLogUpdated, nil, 1, 1)))

	assert.Equal(t, []Kind{GitStatusUpdated}, got["status"])
	assert.Equal(t, []Kind{GitStatusUpdated, GitLogUpdated}, got["all"])
	assert.Empty(t, got["none"])
	assert.Equal(t, Stats{Published: 2, Delivered: 3}, d.Stats())
}

func TestDispatcher_SubscribeErrors(t *testing.T) {
	d := NewDispatcher(nil)
	_, err := d.SubscribeFunc("", func(Event) {})
	assert.ErrorIs(t, err, ErrInvalidPattern)
	_, err = d.SubscribeFunc("git.**", nil)
	assert.ErrorIs(t, err, ErrNilHandler)
	_, err = d.Subscribe("git.**", nil)
	assert.ErrorIs(t, err, ErrNilHandler)
}

func TestDispatcher_Unsubscribe(t *testing.T) {
	d := NewDispatcher(nil)
	calls := 0
	var sub *Subscription
	sub, err := d.SubscribeFunc("**", func(Event) {
		calls++
		d.Unsubscribe(sub)
	})
	require.NoError(t, err)
	assert.Equal(t, 1, d.Len())
	assert.Equal(t, Topic("**"), sub.Pattern())
	assert.NotZero(t, sub.ID())

	d.Publish(New(GitStatusUpdated, nil, 1, 1))
	d.Publish(New(GitStatusUpdated, nil, 2, 2))
	assert.Equal(t, 1, calls)
	assert.False(t, sub.Active())
	assert.Equal(t, 0, d.Len())

	d.Unsubscribe(sub)
	d.Unsubscribe(nil)
}

func TestDispatcher_PanicIsolation(t *testing.T) {
	d := NewDispatcher(nil)
	var after []Kind
	_, err := d.SubscribeFunc("**", func(Event) { panic("boom") })
	require.NoError(t, err)
	_, err = d.SubscribeFunc("**", func(e Event) { after = append(after, e.Kind) })
	require.NoError(t, err)

	assert.Equal(t, 1, d.Publish(New(GitLocksUpdated, nil, 1, 1)))
	assert.Equal(t, []Kind{GitLocksUpdated}, after)
	assert.Equal(t, uint64(1), d.Stats().Panics)
}
