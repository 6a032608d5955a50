package cache

import "errors"

// Error types for cache operations.
var (
	// ErrUnknownCategory indicates a category value or name is not recognised.
	ErrUnknownCategory = errors.New("unknown category")

	// ErrCycle indicates the dependency table contains a cycle.
	ErrCycle = errors.New("dependency cycle")
)
