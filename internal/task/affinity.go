package task

import "fmt"

// Affinity is the concurrency class of a task. It selects the lane the task
// runs on.
type Affinity int

const (
	// Exclusive tasks run one at a time in submission order. Anything that
	// can rewrite repository metadata runs here.
	Exclusive Affinity = iota
	// Concurrent tasks start as soon as a parallelism slot is free, with no
	// ordering between them. Read-only queries run here.
	Concurrent
	// ExclusiveNetwork is a second exclusive lane for commands that talk to
	// a remote, so a slow fetch does not hold up local writes.
	ExclusiveNetwork
	// UIThread tasks run in order on a single dedicated goroutine. The work
	// handed to it must already be complete; it must not block on I/O.
	UIThread
)

// String returns the lane name.
func (a Affinity) String() string {
	switch a {
	case Exclusive:
		return "exclusive"
	case Concurrent:
		return "concurrent"
	case ExclusiveNetwork:
		return "exclusive-network"
	case UIThread:
		return "ui"
	default:
		return fmt.Sprintf("affinity(%d)", int(a))
	}
}

// Valid reports whether a is a known affinity.
func (a Affinity) Valid() bool {
	return a >= Exclusive && a <= UIThread
}

// State is the lifecycle state of a task.
type State int

const (
	// StateQueued means the task waits for its lane.
	StateQueued State = iota
	// StateRunning means the task function is executing.
	StateRunning
	// StateCompleted means the task function returned without error.
	StateCompleted
	// StateFailed means the task function returned an error or panicked.
	StateFailed
	// StateCancelled means the task was cancelled before or while running.
	StateCancelled
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateQueued:
		return "queued"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Terminal reports whether s is a final state.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}
