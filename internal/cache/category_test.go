package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCategoryString(t *testing.T) {
	assert.Equal(t, "status", Status.String())
	assert.Equal(t, "ahead-behind", AheadBehind.String())
	assert.Equal(t, "category(99)", Category(99).String())
}

func TestParseCategory(t *testing.T) {
	for _, c := range All() {
		got, err := ParseCategory(c.String())
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}

	got, err := ParseCategory("  Remote-Branches ")
	require.NoError(t, err)
	assert.Equal(t, RemoteBranches, got)

	_, err = ParseCategory("stash")
	require.ErrorIs(t, err, ErrUnknownCategory)
}

func TestSetOperations(t *testing.T) {
	s := NewSet(Status, Log)
	assert.True(t, s.Has(Status))
	assert.False(t, s.Has(Locks))
	assert.Equal(t, 2, s.Len())

	s = s.With(Locks).Without(Status)
	assert.Equal(t, []Category{Log, Locks}, s.Slice())
	assert.Equal(t, "[log locks]", s.String())

	assert.Equal(t, NewSet(Log), s.Intersect(NewSet(Log, Status)))
	assert.Equal(t, NewSet(Locks), s.Minus(NewSet(Log)))
	assert.True(t, Set(0).Empty())
	assert.Equal(t, len(All()), AllSet().Len())

	// invalid categories are ignored
	assert.Equal(t, s, s.With(Category(-3)))
}
