package watcher

import (
	"path/filepath"
	"strings"
	"sync/atomic"

	"golang.org/x/text/unicode/norm"

	"github.com/dshills/gitstate/internal/cache"
)

// Layout locates the parts of a repository on disk.
type Layout struct {
	// WorkTree is the root of the working tree.
	WorkTree string

	// GitDir holds per-worktree state: HEAD, index, merge state.
	GitDir string

	// CommonDir holds shared state: refs, packed-refs, config. It equals
	// GitDir outside linked worktrees.
	CommonDir string
}

func (l Layout) normalized() Layout {
	if l.CommonDir == "" {
		l.CommonDir = l.GitDir
	}
	return Layout{
		WorkTree:  normalizePath(l.WorkTree),
		GitDir:    normalizePath(l.GitDir),
		CommonDir: normalizePath(l.CommonDir),
	}
}

// skippedGitDirs hold bulk data that never affects a cached category.
var skippedGitDirs = map[string]bool{
	"objects": true,
	"logs":    true,
	"hooks":   true,
	"lfs":     true,
}

// operationStateFiles mark an in-progress merge, rebase or pick.
var operationStateFiles = map[string]bool{
	"MERGE_HEAD":       true,
	"MERGE_MSG":        true,
	"CHERRY_PICK_HEAD": true,
	"REVERT_HEAD":      true,
	"rebase-merge":     true,
	"rebase-apply":     true,
}

// Classifier maps changed paths to cache categories.
//
//	<git>/HEAD                   CurrentBranch
//	<git>/index                  Status
//	<git>/MERGE_HEAD, rebase-*   Status
//	<common>/refs/heads/**       LocalBranches
//	<common>/refs/remotes/**     RemoteBranches
//	<common>/packed-refs         LocalBranches, RemoteBranches
//	<common>/config              Remotes
//	any *.lock in the git dirs   Locks
//	other working tree files     WorkingTree, unless ignored
//
// Everything else in the git directories (objects, logs, FETCH_HEAD, ...)
// maps to nothing.
type Classifier struct {
	layout Layout
	ignore atomic.Pointer[IgnoreRules]
}

// NewClassifier creates a classifier. A nil ignore set ignores nothing.
func NewClassifier(layout Layout, ignore *IgnoreRules) *Classifier {
	c := &Classifier{layout: layout.normalized()}
	c.SetIgnore(ignore)
	return c
}

// Layout returns the normalized layout.
func (c *Classifier) Layout() Layout {
	return c.layout
}

// SetIgnore replaces the working tree ignore rules.
func (c *Classifier) SetIgnore(ignore *IgnoreRules) {
	if ignore == nil {
		ignore = NewIgnoreRules()
	}
	c.ignore.Store(ignore)
}

// Classify returns the categories touched by a batch. An overflowed batch
// touches everything.
func (c *Classifier) Classify(b Batch) cache.Set {
	if b.Overflow {
		return cache.AllSet()
	}
	var set cache.Set
	for _, e := range b.Events {
		set = set.Union(c.ClassifyPath(e.Path))
	}
	return set
}

// ClassifyPath returns the categories touched by a change to p.
func (c *Classifier) ClassifyPath(p string) cache.Set {
	p = normalizePath(p)
	l := c.layout
	shared := l.GitDir == l.CommonDir

	if rel, ok := within(l.GitDir, p); ok {
		return classifyGitPath(rel, true, shared)
	}
	if rel, ok := within(l.CommonDir, p); ok {
		return classifyGitPath(rel, false, true)
	}
	if rel, ok := within(l.WorkTree, p); ok {
		if rel == "." || rel == ".git" || c.ignore.Load().Match(rel, false) {
			return 0
		}
		return cache.NewSet(cache.WorkingTree)
	}
	return 0
}

// Skip reports whether a path is not worth watching or reporting. It is
// meant for WithSkip.
func (c *Classifier) Skip(p string, isDir bool) bool {
	p = normalizePath(p)
	l := c.layout
	if rel, ok := within(l.GitDir, p); ok {
		return skippedGitDirs[firstSegment(rel)]
	}
	if rel, ok := within(l.CommonDir, p); ok {
		return skippedGitDirs[firstSegment(rel)]
	}
	if rel, ok := within(l.WorkTree, p); ok {
		if rel == "." {
			return false
		}
		// nested repositories and submodules
		if isDir && filepath.Base(rel) == ".git" {
			return true
		}
		return c.ignore.Load().Match(rel, isDir)
	}
	return false
}

func classifyGitPath(rel string, perWorktree, shared bool) cache.Set {
	if rel == "." {
		return 0
	}
	if strings.HasSuffix(rel, ".lock") {
		return cache.NewSet(cache.Locks)
	}
	first := firstSegment(rel)

	if perWorktree {
		switch {
		case rel == "HEAD":
			return cache.NewSet(cache.CurrentBranch)
		case rel == "index":
			return cache.NewSet(cache.Status)
		case operationStateFiles[first]:
			return cache.NewSet(cache.Status)
		}
	}
	if shared {
		switch {
		case rel == "packed-refs":
			return cache.NewSet(cache.LocalBranches, cache.RemoteBranches)
		case rel == "config":
			return cache.NewSet(cache.Remotes)
		case rel == "refs/heads" || strings.HasPrefix(rel, "refs/heads/"):
			return cache.NewSet(cache.LocalBranches)
		case rel == "refs/remotes" || strings.HasPrefix(rel, "refs/remotes/"):
			return cache.NewSet(cache.RemoteBranches)
		}
	}
	return 0
}

// within returns p relative to base, slash separated, if p is base or below.
func within(base, p string) (string, bool) {
	if base == "" {
		return "", false
	}
	rel, err := filepath.Rel(base, p)
	if err != nil {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", false
	}
	return rel, true
}

func firstSegment(rel string) string {
	if i := strings.IndexByte(rel, '/'); i >= 0 {
		return rel[:i]
	}
	return rel
}

// normalizePath cleans p and puts it in Unicode NFC so decomposed names
// reported by some file systems compare equal to the layout.
func normalizePath(p string) string {
	if p == "" {
		return ""
	}
	return norm.NFC.String(filepath.Clean(p))
}
