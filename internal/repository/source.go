package repository

import (
	"github.com/dshills/gitstate/internal/git"
	"github.com/dshills/gitstate/internal/watcher"
)

// ChangeSource delivers classified change batches. The channel is closed
// by Close.
type ChangeSource interface {
	Start() error
	Changes() <-chan watcher.Change
	Close() error
}

// WatchRepository returns a file system change source for repo.
func WatchRepository(repo *git.Repository, opts watcher.Options) *watcher.RepositoryWatcher {
	return watcher.NewRepositoryWatcher(watcher.Layout{
		WorkTree:  repo.Root(),
		GitDir:    repo.GitDir(),
		CommonDir: repo.CommonDir(),
	}, opts)
}

var _ ChangeSource = (*watcher.RepositoryWatcher)(nil)
