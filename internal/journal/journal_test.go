package journal

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/gitstate/internal/cache"
	"github.com/dshills/gitstate/internal/event"
	"github.com/dshills/gitstate/internal/git"
	"github.com/dshills/gitstate/internal/repository"
)

func openTestJournal(t *testing.T, path, repo string, retain int) *Journal {
	t.Helper()
	j, err := Open(path, repo, Options{Retain: retain})
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestJournal_Cycles(t *testing.T) {
	j := openTestJournal(t, filepath.Join(t.TempDir(), "j.db"), "/repo", 0)
	start := time.Unix(1700000000, 0)

	j.RecordCycle(repository.CycleReport{
		Cycle:     1,
		Started:   start,
		Finished:  start.Add(15 * time.Millisecond),
		Refreshed: cache.NewSet(cache.Status, cache.Log),
		Rejected:  cache.NewSet(cache.LocalBranches),
		Notified:  []event.Kind{event.GitStatusUpdated, event.GitLogUpdated},
	})
	j.RecordCycle(repository.CycleReport{
		Cycle:    2,
		Started:  start.Add(time.Second),
		Finished: start.Add(time.Second),
		Failed:   cache.NewSet(cache.Remotes),
	})

	cycles, err := j.Cycles(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, cycles, 2)

	assert.Equal(t, uint64(2), cycles[0].Cycle)
	assert.Equal(t, []string{"remotes"}, cycles[0].Failed)
	assert.Empty(t, cycles[0].Notified)

	assert.Equal(t, []string{"status", "log"}, cycles[1].Refreshed)
	assert.Equal(t, []string{"local-branches"}, cycles[1].Rejected)
	assert.Equal(t, []string{"GitStatusUpdated", "GitLogUpdated"}, cycles[1].Notified)
	assert.True(t, cycles[1].Started.Equal(start))
	assert.Equal(t, 15*time.Millisecond, cycles[1].Finished.Sub(cycles[1].Started))
}

func TestJournal_Commands(t *testing.T) {
	j := openTestJournal(t, filepath.Join(t.TempDir(), "j.db"), "/repo", 0)

	j.RecordCommand(repository.CommandReport{
		ID:          "a",
		Operation:   git.OpCommitAll,
		Started:     time.Unix(1700000000, 0),
		Duration:    120 * time.Millisecond,
		Invalidated: cache.NewSet(cache.Status, cache.Log),
	})
	j.RecordCommand(repository.CommandReport{
		ID:        "b",
		Operation: git.OpSwitchBranch,
		Target:    "feature",
		Started:   time.Unix(1700000001, 0),
		Err:       errors.New("git checkout: not found: pathspec 'feature' did not match"),
	})

	cmds, err := j.Commands(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, cmds, 1)
	assert.Equal(t, "b", cmds[0].ID)
	assert.Equal(t, "switch-branch", cmds[0].Operation)
	assert.Equal(t, "feature", cmds[0].Target)
	assert.Contains(t, cmds[0].Error, "did not match")
	assert.Empty(t, cmds[0].Invalidated)

	cmds, err = j.Commands(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, cmds, 2)
	assert.Equal(t, "commit-all", cmds[1].Operation)
	assert.Equal(t, 120*time.Millisecond, cmds[1].Duration)
	assert.Equal(t, []string{"status", "log"}, cmds[1].Invalidated)
}

func TestJournal_SeparatesRepositories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "j.db")
	a := openTestJournal(t, path, "/a", 0)
	a.RecordCycle(repository.CycleReport{Cycle: 1})

	b := openTestJournal(t, path, "/b", 0)
	cycles, err := b.Cycles(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, cycles)

	cycles, err = a.Cycles(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, cycles, 1)
}

func TestJournal_Prune(t *testing.T) {
	j := openTestJournal(t, filepath.Join(t.TempDir(), "j.db"), "/repo", 5)
	for i := range pruneEvery {
		j.RecordCycle(repository.CycleReport{Cycle: uint64(i + 1)})
	}

	cycles, err := j.Cycles(context.Background(), 100)
	require.NoError(t, err)
	require.Len(t, cycles, 5)
	assert.Equal(t, uint64(pruneEvery), cycles[0].Cycle)

	require.NoError(t, j.Prune(context.Background(), 2))
	cycles, err = j.Cycles(context.Background(), 100)
	require.NoError(t, err)
	assert.Len(t, cycles, 2)
}

func TestJournal_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "j.db")
	j, err := Open(path, "/repo", Options{})
	require.NoError(t, err)
	j.RecordCommand(repository.CommandReport{ID: "x", Operation: git.OpFetch})
	require.NoError(t, j.Close())

	j = openTestJournal(t, path, "/repo", 0)
	cmds, err := j.Commands(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, cmds, 1)
	assert.Equal(t, "fetch", cmds[0].Operation)

	var mode string
	require.NoError(t, j.db.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)
}

func TestJournal_InMemory(t *testing.T) {
	j := openTestJournal(t, ":memory:", "/repo", 0)
	j.RecordCycle(repository.CycleReport{Cycle: 1, Refreshed: cache.NewSet(cache.Status)})
	cycles, err := j.Cycles(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, cycles, 1)
}
