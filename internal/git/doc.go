// Package git drives the git executable for the repository coordinator.
//
// It has two halves. Queries read one cache category each and run with
// GIT_OPTIONAL_LOCKS=0, so a refresh never competes with a writer for
// index.lock:
//
//	repo, err := git.Discover(".", runner, git.Options{})
//	status, err := repo.Status(ctx)
//	v, err := repo.Query(ctx, cache.Log)
//
// Operations describe mutating commands as values. Each carries the lane it
// must run on and the categories a successful run invalidates:
//
//	op, err := git.CommitFiles([]string{"a.txt"}, "msg", "")
//	out, err := repo.Run(ctx, op)
//
// Failed operations return a *process.Failure. When git's stderr makes it
// clear, the kind is refined to process.KindConflict or process.KindNotFound.
package git
