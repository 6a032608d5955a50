package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/gitstate/internal/git"
	"github.com/dshills/gitstate/internal/journal"
	"github.com/dshills/gitstate/internal/process"
)

func newGolden(t *testing.T) *goldie.Goldie {
	t.Helper()
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func plainPrinter(buf *bytes.Buffer) *printer {
	return &printer{w: buf, style: newStyles(false)}
}

// fakeRepository serves fixed cached values.
type fakeRepository struct {
	status   *git.Status
	head     git.Head
	branches []git.Branch
	ab       git.AheadBehind
	log      []git.Commit
	locks    []git.Lock
	remotes  []git.Remote
}

func (f *fakeRepository) Status() (*git.Status, uint64)          { return f.status, 3 }
func (f *fakeRepository) CurrentBranch() (git.Head, uint64)      { return f.head, 1 }
func (f *fakeRepository) LocalBranches() ([]git.Branch, uint64)  { return f.branches, 1 }
func (f *fakeRepository) AheadBehind() (git.AheadBehind, uint64) { return f.ab, 2 }
func (f *fakeRepository) Log() ([]git.Commit, uint64)            { return f.log, 4 }
func (f *fakeRepository) Locks() ([]git.Lock, uint64)            { return f.locks, 1 }
func (f *fakeRepository) Remotes() ([]git.Remote, uint64)        { return f.remotes, 1 }

func dirtyRepository() *fakeRepository {
	return &fakeRepository{
		head: git.Head{Branch: "main", Hash: "abc1234def"},
		ab:   git.AheadBehind{Branch: "main", Upstream: "origin/main", Ahead: 2, Behind: 1},
		status: &git.Status{
			Branch: "main",
			Entries: []git.FileStatus{
				{Path: "cmd/main.go", Index: git.StatusModified},
				{Path: "README.md", Worktree: git.StatusModified},
				{Path: "new.go", OldPath: "old.go", Index: git.StatusRenamed},
			},
			Untracked: []string{"notes.txt"},
		},
		branches: []git.Branch{
			{Name: "main", Upstream: "origin/main", Head: true},
			{Name: "feature", Upstream: "origin/feature", Gone: true},
		},
		remotes: []git.Remote{{Name: "origin", FetchURL: "git@example.com:acme/widgets.git"}},
		locks:   []git.Lock{{Path: "index.lock"}},
		log: []git.Commit{
			{ShortHash: "abc1234", Subject: "Add widgets", Author: "Ada", AuthorTime: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)},
			{ShortHash: "9f8e7d6", Subject: "Initial commit", Author: "Ada", AuthorTime: time.Date(2024, 2, 28, 9, 0, 0, 0, time.UTC)},
			{ShortHash: "0000000", Subject: "Beyond the limit", Author: "Ada"},
		},
	}
}

func TestRenderStatus_Golden(t *testing.T) {
	tests := []struct {
		name string
		repo *fakeRepository
	}{
		{name: "status_dirty", repo: dirtyRepository()},
		{name: "status_clean_detached", repo: &fakeRepository{
			head:   git.Head{Hash: "0123456789", Detached: true},
			status: &git.Status{Head: "0123456789"},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			renderStatus(plainPrinter(&buf), buildStatusView("/src/widgets", tt.repo, 2))
			newGolden(t).Assert(t, tt.name, buf.Bytes())
		})
	}
}

func TestBuildStatusView(t *testing.T) {
	v := buildStatusView("/src/widgets", dirtyRepository(), 2)

	assert.False(t, v.Clean)
	assert.Len(t, v.Log, 2)
	require.NotNil(t, v.Tracking)
	assert.Equal(t, 2, v.Tracking.Ahead)
	assert.Equal(t, uint64(3), v.Versions["status"])
	assert.Equal(t, uint64(4), v.Versions["log"])
	require.Len(t, v.Files, 3)
	assert.Equal(t, "modified", v.Files[0].Index)
	assert.Equal(t, "unmodified", v.Files[0].Worktree)

	data, err := json.Marshal(v)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"root":"/src/widgets"`)
	assert.NotContains(t, string(data), "Beyond the limit")

	untracked := buildStatusView("/r", &fakeRepository{ab: git.AheadBehind{Branch: "main"}}, 0)
	assert.Nil(t, untracked.Tracking)
	assert.True(t, untracked.Clean)
}

func TestRenderHistory_Golden(t *testing.T) {
	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.Local)
	v := historyView{
		Commands: []journal.Command{
			{Operation: "commit-all", Started: at, Duration: 120 * time.Millisecond, Invalidated: []string{"status", "log"}},
			{
				Operation: "switch-branch",
				Target:    "feature",
				Started:   at.Add(5 * time.Second),
				Duration:  15 * time.Millisecond,
				Error:     "git checkout: not found: pathspec 'feature' did not match",
			},
		},
		Cycles: []journal.Cycle{
			{Cycle: 2, Started: at, Finished: at},
			{
				Cycle:     1,
				Started:   at,
				Finished:  at.Add(15 * time.Millisecond),
				Refreshed: []string{"status", "log"},
				Rejected:  []string{"local-branches"},
				Failed:    []string{"remotes"},
			},
		},
	}
	var buf bytes.Buffer
	renderHistory(plainPrinter(&buf), v)
	newGolden(t).Assert(t, "history", buf.Bytes())
}

func TestSummarize(t *testing.T) {
	tests := []struct {
		value any
		want  string
	}{
		{&git.Status{}, "clean"},
		{&git.Status{Entries: []git.FileStatus{{Path: "a"}}, Untracked: []string{"b", "c"}}, "1 changed, 2 untracked, 0 conflicts"},
		{git.Head{Branch: "main"}, "main"},
		{git.AheadBehind{}, "no upstream"},
		{git.AheadBehind{Upstream: "origin/main", Ahead: 1, Behind: 3}, "origin/main +1 -3"},
		{[]git.Branch{{Name: "main"}, {Name: "dev"}}, "main dev"},
		{[]git.Commit{}, "no commits"},
		{[]git.Commit{{ShortHash: "abc1234", Subject: "Fix"}}, "1 commits, head abc1234 Fix"},
		{[]git.Lock{}, "no locks"},
		{[]git.Lock{{Path: "index.lock"}}, "index.lock"},
		{[]git.Remote{{Name: "origin"}}, "origin"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, summarize(tt.value), "%T", tt.value)
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"conflict", &process.Failure{Kind: process.KindConflict, Command: "git push"}, ExitConflict},
		{"not found", fmt.Errorf("switch: %w", &process.Failure{Kind: process.KindNotFound}), ExitUserError},
		{"invalid name", fmt.Errorf("%w: %q", git.ErrInvalidName, "-x"), ExitUserError},
		{"empty message", git.ErrEmptyMessage, ExitUserError},
		{"user error", userError(errors.New("bad flag")), ExitUserError},
		{"timeout", &process.Failure{Kind: process.KindTimeout}, ExitSystemError},
		{"other", errors.New("boom"), ExitSystemError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}

func TestRootCommand_Tree(t *testing.T) {
	root := newRootCmd()
	for _, path := range [][]string{
		{"status"}, {"watch"}, {"history"}, {"commit"}, {"switch"},
		{"branch", "create"}, {"branch", "delete"}, {"fetch"}, {"pull"}, {"push"},
		{"remote", "add"}, {"remote", "remove"},
	} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err, "%v", path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}

func gitRepo(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping git integration test in short mode")
	}
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	run := func(args ...string) {
		out, err := exec.Command("git", append([]string{"-C", dir}, args...)...).CombinedOutput()
		require.NoError(t, err, "%s", out)
	}
	run("init", "-q", "-b", "main")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "Test User")
	run("config", "commit.gpgsign", "false")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("hello\n"), 0o644))
	run("add", "README.md")
	run("commit", "-q", "-m", "initial")
	return dir
}

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("GITSTATE_JOURNAL_PATH", filepath.Join(t.TempDir(), "journal.db"))
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	err := root.ExecuteContext(ctx)
	return out.String(), err
}

func TestCLI_StatusAndCommit(t *testing.T) {
	dir := gitRepo(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "new.txt"), []byte("x\n"), 0o644))

	out, err := execute(t, "--repo", dir, "--json", "status")
	require.NoError(t, err)
	var v statusView
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.Equal(t, dir, v.Root)
	assert.Equal(t, "main", v.Head.Branch)
	assert.Equal(t, []string{"new.txt"}, v.Untracked)
	require.Len(t, v.Log, 1)
	assert.Equal(t, "initial", v.Log[0].Subject)

	out, err = execute(t, "--repo", dir, "--json", "commit", "--all", "-m", "add new")
	require.NoError(t, err)
	var res opResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "commit-all", res.Operation)
	assert.Contains(t, res.Invalidated, "log")

	_, err = execute(t, "--repo", dir, "commit", "-m", "")
	assert.Equal(t, ExitUserError, exitCode(err))

	_, err = execute(t, "--repo", dir, "switch", "does-not-exist")
	require.Error(t, err)
	assert.NotEqual(t, ExitSuccess, exitCode(err))
}

func TestCLI_NotARepository(t *testing.T) {
	_, err := execute(t, "--repo", t.TempDir(), "status")
	require.Error(t, err)
	assert.Equal(t, ExitUserError, exitCode(err))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefghij", 5))
	assert.Equal(t, "日本…", truncate("日本語のテキスト", 5))
}

func TestPrintQuery(t *testing.T) {
	v := buildStatusView("/src/widgets", dirtyRepository(), 2)

	var buf bytes.Buffer
	require.NoError(t, printQuery(plainPrinter(&buf), v, "head.branch"))
	assert.Equal(t, "main\n", buf.String())

	buf.Reset()
	require.NoError(t, printQuery(plainPrinter(&buf), v, "files.#.path"))
	assert.Equal(t, `["cmd/main.go","README.md","new.go"]`+"\n", buf.String())

	buf.Reset()
	require.NoError(t, printQuery(plainPrinter(&buf), v, "tracking.ahead"))
	assert.Equal(t, "2\n", buf.String())

	err := printQuery(plainPrinter(&buf), v, "no.such.field")
	assert.Equal(t, ExitUserError, exitCode(err))
}
