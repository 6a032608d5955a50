package cache

import (
	"fmt"
	"math/bits"
	"strings"
)

// Category identifies one class of repository fact that is cached and
// refreshed independently.
type Category int

const (
	// WorkingTree covers files in the working tree. It has no cached value of
	// its own and only exists to propagate staleness to Status.
	WorkingTree Category = iota
	// Status is the index and working tree status snapshot.
	Status
	// LocalBranches is the list of branches under refs/heads.
	LocalBranches
	// RemoteBranches is the list of remote-tracking branches under refs/remotes.
	RemoteBranches
	// CurrentBranch is the checked out branch (or detached HEAD).
	CurrentBranch
	// AheadBehind is the ahead/behind count of HEAD against its upstream.
	AheadBehind
	// Log is the recent commit history of HEAD.
	Log
	// Locks is the set of lock files currently held in the git directory.
	Locks
	// Remotes is the list of configured remotes.
	Remotes

	numCategories
)

var categoryNames = [numCategories]string{
	WorkingTree:    "working-tree",
	Status:         "status",
	LocalBranches:  "local-branches",
	RemoteBranches: "remote-branches",
	CurrentBranch:  "current-branch",
	AheadBehind:    "ahead-behind",
	Log:            "log",
	Locks:          "locks",
	Remotes:        "remotes",
}

// String returns the category name.
func (c Category) String() string {
	if !c.Valid() {
		return fmt.Sprintf("category(%d)", int(c))
	}
	return categoryNames[c]
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	return c >= 0 && c < numCategories
}

// ParseCategory converts a category name back into a Category.
func ParseCategory(name string) (Category, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for c, n := range categoryNames {
		if n == name {
			return Category(c), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownCategory, name)
}

// All returns every category in declaration order.
func All() []Category {
	out := make([]Category, 0, numCategories)
	for c := Category(0); c < numCategories; c++ {
		out = append(out, c)
	}
	return out
}

// Set is a bitset of categories.
type Set uint16

// NewSet builds a set from the given categories.
func NewSet(cats ...Category) Set {
	var s Set
	for _, c := range cats {
		s = s.With(c)
	}
	return s
}

// AllSet returns the set of every category.
func AllSet() Set {
	return NewSet(All()...)
}

// With returns s with c added.
func (s Set) With(c Category) Set {
	if !c.Valid() {
		return s
	}
	return s | 1<<uint(c)
}

// Without returns s with c removed.
func (s Set) Without(c Category) Set {
	if !c.Valid() {
		return s
	}
	return s &^ (1 << uint(c))
}

// Has reports whether c is in s.
func (s Set) Has(c Category) bool {
	return c.Valid() && s&(1<<uint(c)) != 0
}

// Union returns the union of s and o.
func (s Set) Union(o Set) Set {
	return s | o
}

// Minus returns the categories of s that are not in o.
func (s Set) Minus(o Set) Set {
	return s &^ o
}

// Intersect returns the categories present in both s and o.
func (s Set) Intersect(o Set) Set {
	return s & o
}

// Empty reports whether s has no categories.
func (s Set) Empty() bool {
	return s == 0
}

// Len returns the number of categories in s.
func (s Set) Len() int {
	return bits.OnesCount16(uint16(s))
}

// Slice returns the categories of s in declaration order.
func (s Set) Slice() []Category {
	out := make([]Category, 0, s.Len())
	for c := Category(0); c < numCategories; c++ {
		if s.Has(c) {
			out = append(out, c)
		}
	}
	return out
}

// String renders the set as a bracketed list of names.
func (s Set) String() string {
	cats := s.Slice()
	names := make([]string, len(cats))
	for i, c := range cats {
		names[i] = c.String()
	}
	return "[" + strings.Join(names, " ") + "]"
}
