// Package cache holds the derived repository facts kept by a repository
// coordinator.
//
// Each Category (status, branches, log, ...) has exactly one entry holding
// its last successfully computed value and a version that increases on every
// accepted write. Categories are related by a static, acyclic dependency
// Graph: invalidating a category also invalidates everything reachable from
// it.
//
// # Refresh protocol
//
// A refresh is bracketed by Begin and Set:
//
//	tok, ok := store.Begin(cache.Status)
//	if ok {
//	    status, err := repo.Status(ctx)
//	    if err != nil {
//	        store.Abandon(tok)
//	    } else {
//	        store.Set(tok, status)
//	    }
//	}
//
// If the category is invalidated again while the refresh runs, Set rejects
// the result and the category stays stale so a new refresh is scheduled.
package cache
