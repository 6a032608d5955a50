package watcher

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/dshills/gitstate/internal/cache"
)

// Change is one classified batch.
type Change struct {
	// Categories are the cache categories the batch may have changed.
	Categories cache.Set

	// Paths is the number of distinct paths in the batch.
	Paths int

	// Overflow is set when events were lost and everything is suspect.
	Overflow bool

	// Start is when the first event of the batch arrived.
	Start time.Time

	// At is when the batch closed.
	At time.Time
}

// Options configures a RepositoryWatcher.
type Options struct {
	// Debounce is the quiet period that closes a batch. Default 100ms.
	Debounce time.Duration

	// MaxWait bounds how long a batch may stay open. Default 10x Debounce.
	MaxWait time.Duration

	// IgnorePatterns are extra gitignore-style patterns for the working tree.
	IgnorePatterns []string

	// BufferSize is the raw event buffer size.
	BufferSize int

	// MaxWatches caps the number of watched directories. 0 is unlimited.
	MaxWatches int

	Logger *slog.Logger
}

// RepositoryWatcher watches a repository's working tree and git directories
// and emits one Change per debounced batch that touches at least one
// category.
type RepositoryWatcher struct {
	layout     Layout
	opts       Options
	classifier *Classifier
	logger     *slog.Logger

	mu      sync.Mutex
	fs      *FSNotifyWatcher
	batcher *Batcher
	started bool
	closed  bool

	changes chan Change
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewRepositoryWatcher prepares a watcher for layout. Nothing is watched
// until Start.
func NewRepositoryWatcher(layout Layout, opts Options) *RepositoryWatcher {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	rw := &RepositoryWatcher{
		layout:  layout.normalized(),
		opts:    opts,
		logger:  opts.Logger,
		changes: make(chan Change, 16),
		done:    make(chan struct{}),
	}
	rw.classifier = NewClassifier(rw.layout, rw.loadIgnore())
	return rw
}

// Classifier returns the classifier in use.
func (rw *RepositoryWatcher) Classifier() *Classifier {
	return rw.classifier
}

// Debounce returns the effective debounce delay.
func (rw *RepositoryWatcher) Debounce() time.Duration {
	if rw.opts.Debounce <= 0 {
		return 100 * time.Millisecond
	}
	return rw.opts.Debounce
}

// Changes returns the change stream. It is closed by Close.
func (rw *RepositoryWatcher) Changes() <-chan Change {
	return rw.changes
}

// Start acquires the OS watch subscription and begins emitting changes.
func (rw *RepositoryWatcher) Start() error {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	if rw.closed {
		return ErrWatcherClosed
	}
	if rw.started {
		return nil
	}

	fsw, err := NewFSNotifyWatcher(
		WithSkip(rw.classifier.Skip),
		WithBufferSize(rw.opts.BufferSize),
		WithMaxWatches(rw.opts.MaxWatches),
	)
	if err != nil {
		return err
	}
	for _, root := range rw.roots() {
		if err := fsw.WatchRecursive(root); err != nil {
			_ = fsw.Close()
			return fmt.Errorf("watch %s: %w", root, err)
		}
	}

	rw.fs = fsw
	rw.batcher = NewBatcher(rw.Debounce(), rw.opts.MaxWait)
	rw.started = true

	rw.wg.Add(2)
	go rw.pump()
	go rw.emit()

	rw.logger.Debug("watcher started", "worktree", rw.layout.WorkTree, "watches", fsw.Stats().WatchedPaths)
	return nil
}

// Close releases the OS subscription and closes the change stream.
func (rw *RepositoryWatcher) Close() error {
	rw.mu.Lock()
	if rw.closed {
		rw.mu.Unlock()
		return nil
	}
	rw.closed = true
	started := rw.started
	close(rw.done)
	rw.mu.Unlock()

	if !started {
		close(rw.changes)
		return nil
	}

	err := rw.fs.Close()
	rw.wg.Wait()
	close(rw.changes)
	return err
}

// roots returns the directories to watch recursively, dropping any that
// lie inside another.
func (rw *RepositoryWatcher) roots() []string {
	var roots []string
	for _, dir := range []string{rw.layout.WorkTree, rw.layout.GitDir, rw.layout.CommonDir} {
		if dir == "" {
			continue
		}
		covered := false
		kept := roots[:0]
		for _, r := range roots {
			if _, ok := within(r, dir); ok {
				covered = true
			}
			if _, ok := within(dir, r); !ok || covered {
				kept = append(kept, r)
			}
		}
		roots = kept
		if !covered {
			roots = append(roots, dir)
		}
	}
	return roots
}

// pump feeds raw events into the batcher until the fs watcher closes.
func (rw *RepositoryWatcher) pump() {
	defer rw.wg.Done()
	defer rw.batcher.Close()

	events := rw.fs.Events()
	errs := rw.fs.Errors()
	for events != nil || errs != nil {
		select {
		case e, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			rw.batcher.Add(e)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if errors.Is(err, ErrOverflow) {
				rw.batcher.MarkOverflow()
			}
			rw.logger.Warn("watcher error", "error", err)
		}
	}
}

// emit classifies batches and publishes non-empty changes.
func (rw *RepositoryWatcher) emit() {
	defer rw.wg.Done()

	gitignore := filepath.Join(rw.layout.WorkTree, ".gitignore")
	for b := range rw.batcher.Batches() {
		if containsPath(b, gitignore) {
			rw.reloadIgnore()
		}
		set := rw.classifier.Classify(b)
		rw.logger.Debug("watcher batch", "paths", b.Len(), "overflow", b.Overflow, "categories", set.String())
		if set.Empty() {
			continue
		}
		select {
		case rw.changes <- Change{
			Categories: set,
			Paths:      b.Len(),
			Overflow:   b.Overflow,
			Start:      b.Start,
			At:         b.End,
		}:
		case <-rw.done:
		}
	}
}

func (rw *RepositoryWatcher) loadIgnore() *IgnoreRules {
	rules := NewIgnoreRules()
	rules.AddLines(DefaultIgnorePatterns...)
	rules.AddLines(rw.opts.IgnorePatterns...)
	for _, f := range []string{
		filepath.Join(rw.layout.WorkTree, ".gitignore"),
		filepath.Join(rw.layout.CommonDir, "info", "exclude"),
	} {
		if err := rules.AddFile(f); err != nil {
			rw.logger.Warn("read ignore file", "file", f, "error", err)
		}
	}
	return rules
}

// reloadIgnore picks up an edited .gitignore and watches directories it no
// longer excludes.
func (rw *RepositoryWatcher) reloadIgnore() {
	rw.classifier.SetIgnore(rw.loadIgnore())
	if err := rw.fs.WatchRecursive(rw.layout.WorkTree); err != nil {
		rw.logger.Warn("rewatch after ignore change", "error", err)
	}
}

func containsPath(b Batch, p string) bool {
	p = normalizePath(p)
	for _, e := range b.Events {
		if normalizePath(e.Path) == p {
			return true
		}
	}
	return false
}
