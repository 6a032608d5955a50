package cache

import "fmt"

// Graph is a static dependency relation between categories. An edge A -> B
// means a change in A forces B stale as well.
type Graph struct {
	edges [numCategories]Set
}

// DefaultEdges is the dependency table used by repositories.
var DefaultEdges = map[Category][]Category{
	WorkingTree:    {Status},
	LocalBranches:  {AheadBehind, Log},
	CurrentBranch:  {AheadBehind, Log, Status},
	RemoteBranches: {AheadBehind},
	Remotes:        {RemoteBranches},
}

// NewGraph builds a graph from an adjacency table. It returns ErrCycle if the
// table is not acyclic.
func NewGraph(edges map[Category][]Category) (*Graph, error) {
	g := &Graph{}
	for from, tos := range edges {
		if !from.Valid() {
			return nil, fmt.Errorf("%w: %d", ErrUnknownCategory, int(from))
		}
		for _, to := range tos {
			if !to.Valid() {
				return nil, fmt.Errorf("%w: %d", ErrUnknownCategory, int(to))
			}
			g.edges[from] = g.edges[from].With(to)
		}
	}
	if err := g.checkAcyclic(); err != nil {
		return nil, err
	}
	return g, nil
}

// DefaultGraph returns the graph built from DefaultEdges.
func DefaultGraph() *Graph {
	g, err := NewGraph(DefaultEdges)
	if err != nil {
		panic(err)
	}
	return g
}

// Dependents returns the direct successors of c.
func (g *Graph) Dependents(c Category) Set {
	if !c.Valid() {
		return 0
	}
	return g.edges[c]
}

// Closure returns seed together with every category reachable from it.
// The walk is done once for the whole seed set.
func (g *Graph) Closure(seed Set) Set {
	result := seed
	frontier := seed
	for !frontier.Empty() {
		var next Set
		for _, c := range frontier.Slice() {
			next = next.Union(g.edges[c])
		}
		frontier = next.Minus(result)
		result = result.Union(next)
	}
	return result
}

// checkAcyclic runs a three-colour DFS over the edges.
func (g *Graph) checkAcyclic() error {
	const (
		white = iota
		grey
		black
	)
	var colour [numCategories]int

	var visit func(c Category) error
	visit = func(c Category) error {
		colour[c] = grey
		for _, next := range g.edges[c].Slice() {
			switch colour[next] {
			case grey:
				return fmt.Errorf("%w: %s -> %s", ErrCycle, c, next)
			case white:
				if err := visit(next); err != nil {
					return err
				}
			}
		}
		colour[c] = black
		return nil
	}

	for c := Category(0); c < numCategories; c++ {
		if colour[c] == white {
			if err := visit(c); err != nil {
				return err
			}
		}
	}
	return nil
}
