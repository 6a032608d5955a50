package task

import "errors"

// Error types for the scheduler.
var (
	// ErrStopped is returned when scheduling on a stopped scheduler.
	ErrStopped = errors.New("scheduler stopped")

	// ErrCancelled is the error of a task cancelled before it ran. It also
	// matches context.Canceled.
	ErrCancelled = errors.New("task cancelled")

	// ErrPanic wraps a panic raised by a task function.
	ErrPanic = errors.New("task panicked")

	// ErrUnknownAffinity is returned for an affinity outside the known lanes.
	ErrUnknownAffinity = errors.New("unknown affinity")
)
