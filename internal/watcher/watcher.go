// Package watcher turns file system activity in a repository into change
// categories.
//
// Raw events come from a Watcher (fsnotify backed). A Batcher coalesces
// bursts into one Batch per quiet period and a Classifier maps every batch to
// the set of cache categories it may have changed. RepositoryWatcher wires
// the three together for one repository.
package watcher

import (
	"errors"
	"time"
)

// Common errors returned by watcher operations.
var (
	ErrWatcherClosed   = errors.New("watcher is closed")
	ErrAlreadyWatching = errors.New("path is already being watched")
	ErrNotWatching     = errors.New("path is not being watched")
	ErrPathNotExist    = errors.New("path does not exist")
	ErrWatchLimit      = errors.New("maximum watch limit reached")

	// ErrOverflow reports that events were lost. Consumers should assume
	// anything may have changed.
	ErrOverflow = errors.New("event queue overflow")
)

// Op is a set of file system operations.
type Op uint32

const (
	// OpCreate indicates a file or directory was created.
	OpCreate Op = 1 << iota
	// OpWrite indicates a file was written to.
	OpWrite
	// OpRemove indicates a file or directory was removed.
	OpRemove
	// OpRename indicates a file or directory was renamed away from the path.
	OpRename
	// OpChmod indicates file permissions were changed.
	OpChmod
)

var opNames = []struct {
	op   Op
	name string
}{
	{OpCreate, "CREATE"},
	{OpWrite, "WRITE"},
	{OpRemove, "REMOVE"},
	{OpRename, "RENAME"},
	{OpChmod, "CHMOD"},
}

// String returns the operations joined with "|".
func (op Op) String() string {
	out := ""
	for _, n := range opNames {
		if op.Has(n.op) {
			if out != "" {
				out += "|"
			}
			out += n.name
		}
	}
	if out == "" {
		return "UNKNOWN"
	}
	return out
}

// Has returns true if op includes o.
func (op Op) Has(o Op) bool {
	return op&o == o
}

// Event is a single file system change.
type Event struct {
	// Path is the absolute path of the affected file or directory.
	Path string

	// Op is the operation that occurred.
	Op Op

	// Timestamp is when the event was observed.
	Timestamp time.Time
}

// Stats provides watcher status information.
type Stats struct {
	WatchedPaths int
	TotalEvents  int64
	Dropped      int64
	Errors       int64
	LastError    error
	StartTime    time.Time
}

// Watcher is the file system boundary: it reports changes under the watched
// paths until closed.
type Watcher interface {
	// Watch starts watching a single directory or file.
	Watch(path string) error

	// WatchRecursive watches a directory and every directory below it that
	// is not skipped.
	WatchRecursive(path string) error

	// Unwatch stops watching a path.
	Unwatch(path string) error

	// Events returns the event channel. It is closed by Close.
	Events() <-chan Event

	// Errors returns the error channel. It is closed by Close.
	Errors() <-chan error

	// Close stops the watcher and releases the OS subscription.
	Close() error

	Stats() Stats
	IsWatching(path string) bool
	WatchedPaths() []string
}

// Config holds watcher configuration options.
type Config struct {
	// BufferSize is the size of the event and error channels.
	// Default: 1024
	BufferSize int

	// MaxWatches caps the number of watched paths. 0 means unlimited.
	MaxWatches int

	// Skip reports whether a path should be neither watched nor reported.
	Skip func(path string, isDir bool) bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{BufferSize: 1024}
}

// Option configures a watcher.
type Option func(*Config)

// WithBufferSize sets the channel buffer size.
func WithBufferSize(size int) Option {
	return func(c *Config) {
		c.BufferSize = size
	}
}

// WithMaxWatches sets the maximum number of watches.
func WithMaxWatches(max int) Option {
	return func(c *Config) {
		c.MaxWatches = max
	}
}

// WithSkip sets the skip predicate.
func WithSkip(skip func(path string, isDir bool) bool) Option {
	return func(c *Config) {
		c.Skip = skip
	}
}
