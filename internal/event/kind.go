package event

import (
	"fmt"

	"github.com/dshills/gitstate/internal/cache"
)

// Kind is a subscriber notification. There is one per cache category with a
// value of its own.
type Kind int

// Notifications, one per category.
const (
	CurrentBranchUpdated Kind = iota + 1
	LocalBranchesUpdated
	RemoteBranchesUpdated
	GitStatusUpdated
	GitAheadBehindStatusUpdated
	GitLogUpdated
	GitLocksUpdated
	RemotesUpdated
)

type kindInfo struct {
	name     string
	topic    Topic
	category cache.Category
}

var kinds = map[Kind]kindInfo{
	CurrentBranchUpdated:        {"CurrentBranchUpdated", "git.current-branch.updated", cache.CurrentBranch},
	LocalBranchesUpdated:        {"LocalBranchesUpdated", "git.local-branches.updated", cache.LocalBranches},
	RemoteBranchesUpdated:       {"RemoteBranchesUpdated", "git.remote-branches.updated", cache.RemoteBranches},
	GitStatusUpdated:            {"GitStatusUpdated", "git.status.updated", cache.Status},
	GitAheadBehindStatusUpdated: {"GitAheadBehindStatusUpdated", "git.ahead-behind.updated", cache.AheadBehind},
	GitLogUpdated:               {"GitLogUpdated", "git.log.updated", cache.Log},
	GitLocksUpdated:             {"GitLocksUpdated", "git.locks.updated", cache.Locks},
	RemotesUpdated:              {"RemotesUpdated", "git.remotes.updated", cache.Remotes},
}

var byCategory = func() map[cache.Category]Kind {
	m := make(map[cache.Category]Kind, len(kinds))
	for k, info := range kinds {
		m[info.category] = k
	}
	return m
}()

// Kinds returns every kind in declaration order.
func Kinds() []Kind {
	out := make([]Kind, 0, len(kinds))
	for k := CurrentBranchUpdated; k <= RemotesUpdated; k++ {
		out = append(out, k)
	}
	return out
}

// String returns the event name, e.g. "GitStatusUpdated".
func (k Kind) String() string {
	if info, ok := kinds[k]; ok {
		return info.name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Topic returns the dot topic of the kind.
func (k Kind) Topic() Topic {
	return kinds[k].topic
}

// Category returns the cache category the kind reports on.
func (k Kind) Category() cache.Category {
	return kinds[k].category
}

// ForCategory returns the kind reporting on c. WorkingTree has none.
func ForCategory(c cache.Category) (Kind, bool) {
	k, ok := byCategory[c]
	return k, ok
}

// ParseKind accepts an event name or its topic.
func ParseKind(s string) (Kind, error) {
	for k, info := range kinds {
		if info.name == s || string(info.topic) == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown event kind %q", s)
}
