package git

import (
	"context"
	"errors"
	"fmt"

	"github.com/dshills/gitstate/internal/cache"
)

// ErrNoQuery is returned for categories without a value of their own.
var ErrNoQuery = errors.New("category has no query")

// Querier produces the current value of a cache category.
type Querier interface {
	Query(ctx context.Context, c cache.Category) (any, error)
}

// HasQuery reports whether c has a value to refresh. WorkingTree only
// propagates staleness to Status.
func HasQuery(c cache.Category) bool {
	return c.Valid() && c != cache.WorkingTree
}

// Query runs the query that refreshes c. The value types are:
//
//	Status          *Status
//	LocalBranches   []Branch
//	RemoteBranches  []Branch
//	CurrentBranch   Head
//	AheadBehind     AheadBehind
//	Log             []Commit
//	Locks           []Lock
//	Remotes         []Remote
func (r *Repository) Query(ctx context.Context, c cache.Category) (any, error) {
	switch c {
	case cache.Status:
		return r.Status(ctx)
	case cache.LocalBranches:
		return r.LocalBranches(ctx)
	case cache.RemoteBranches:
		return r.RemoteBranches(ctx)
	case cache.CurrentBranch:
		return r.Head(ctx)
	case cache.AheadBehind:
		return r.AheadBehind(ctx)
	case cache.Log:
		return r.Log(ctx)
	case cache.Locks:
		return r.Locks(ctx)
	case cache.Remotes:
		return r.Remotes(ctx)
	case cache.WorkingTree:
		return nil, fmt.Errorf("%w: %s", ErrNoQuery, c)
	}
	return nil, fmt.Errorf("%w: %s", cache.ErrUnknownCategory, c)
}

var _ Querier = (*Repository)(nil)
