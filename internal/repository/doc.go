// Package repository coordinates the cached view of a git repository.
//
// A Coordinator ties together the cache store, the task scheduler, the file
// system watcher and the event dispatcher:
//
//	repo, _ := git.Discover(".", runner, git.Options{})
//	c := repository.New(repo, repository.Options{
//		Changes: repository.WatchRepository(repo, watcher.Options{}),
//	})
//	c.Subscribe("git.status.updated", func(e event.Event) { ... })
//	c.Start()
//	h, _ := c.CommitAllFiles("message", "")
//	h.Wait(ctx)
//	c.WaitForEvents(ctx)
//
// Operations run on their affinity lane. A successful one invalidates its
// categories; the watcher's view of the same writes is suppressed so the
// change is refreshed once. All invalidations settle into one refresh
// cycle, and each category whose value changed produces one event.
package repository
