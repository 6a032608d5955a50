// Package event carries cache change notifications to subscribers.
//
// Each Kind reports on one cache category and has a dot topic:
//
//	CurrentBranchUpdated         git.current-branch.updated
//	LocalBranchesUpdated         git.local-branches.updated
//	RemoteBranchesUpdated        git.remote-branches.updated
//	GitStatusUpdated             git.status.updated
//	GitAheadBehindStatusUpdated  git.ahead-behind.updated
//	GitLogUpdated                git.log.updated
//	GitLocksUpdated              git.locks.updated
//	RemotesUpdated               git.remotes.updated
//
// Subscribers register a topic pattern with a Dispatcher; "*" matches one
// segment and "**" any number:
//
//	d.SubscribeFunc("git.*.updated", func(e event.Event) { ... })
//
// Delivery is synchronous and in subscription order. The repository
// coordinator publishes from a single goroutine, so a subscriber sees
// events in the order they were emitted.
package event
