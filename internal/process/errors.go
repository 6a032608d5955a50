package process

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failed command.
type Kind int

const (
	// KindProcess is a non-zero exit, a start failure or unparseable output.
	KindProcess Kind = iota + 1
	// KindTimeout means the command exceeded its time limit.
	KindTimeout
	// KindCancelled means the caller cancelled the command.
	KindCancelled
	// KindConflict means a mutating command was rejected by the tool.
	KindConflict
	// KindNotFound means the target of the command does not exist.
	KindNotFound
)

// String returns a human-readable kind name.
func (k Kind) String() string {
	switch k {
	case KindProcess:
		return "process failure"
	case KindTimeout:
		return "timeout"
	case KindCancelled:
		return "cancelled"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not found"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Sentinel errors matched by Failure.Is.
var (
	// ErrProcess matches failures of kind KindProcess.
	ErrProcess = errors.New("process failed")

	// ErrTimeout matches failures of kind KindTimeout.
	ErrTimeout = errors.New("process timed out")

	// ErrCancelled matches failures of kind KindCancelled.
	ErrCancelled = errors.New("process cancelled")

	// ErrConflict matches failures of kind KindConflict.
	ErrConflict = errors.New("rejected by conflict")

	// ErrNotFound matches failures of kind KindNotFound.
	ErrNotFound = errors.New("target not found")
)

// Supervisor errors.
var (
	// ErrProcessNotFound is returned when a process ID is not tracked.
	ErrProcessNotFound = errors.New("process not found")

	// ErrSupervisorShutdown is returned when the supervisor is shutting down.
	ErrSupervisorShutdown = errors.New("supervisor is shutting down")

	// ErrProcessNotStarted is returned when operations require a started process.
	ErrProcessNotStarted = errors.New("process not started")

	// ErrProcessAlreadyStarted is returned when starting a process twice.
	ErrProcessAlreadyStarted = errors.New("process already started")
)

func (k Kind) sentinel() error {
	switch k {
	case KindProcess:
		return ErrProcess
	case KindTimeout:
		return ErrTimeout
	case KindCancelled:
		return ErrCancelled
	case KindConflict:
		return ErrConflict
	case KindNotFound:
		return ErrNotFound
	}
	return nil
}

// Failure is the structured error of a failed command.
type Failure struct {
	Kind Kind

	// Command is the label of the failed command, e.g. "git commit".
	Command string

	// ExitCode is the exit status, or -1 if the process did not exit normally.
	ExitCode int

	// Stderr is the captured standard error.
	Stderr string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements error.
func (f *Failure) Error() string {
	var b strings.Builder
	if f.Command != "" {
		b.WriteString(f.Command)
		b.WriteString(": ")
	}
	b.WriteString(f.Kind.String())
	if f.Kind == KindProcess && f.ExitCode > 0 {
		fmt.Fprintf(&b, " (exit %d)", f.ExitCode)
	}
	if msg := firstLine(f.Stderr); msg != "" {
		b.WriteString(": ")
		b.WriteString(msg)
	} else if f.Err != nil {
		b.WriteString(": ")
		b.WriteString(f.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (f *Failure) Unwrap() error {
	return f.Err
}

// Is matches the sentinel of the failure kind.
func (f *Failure) Is(target error) bool {
	return target != nil && target == f.Kind.sentinel()
}

// WithKind returns a copy of f with a different kind.
func (f *Failure) WithKind(k Kind) *Failure {
	c := *f
	c.Kind = k
	return &c
}

// AsFailure extracts a Failure from err.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// KindOf returns the failure kind of err. Context errors map to
// KindCancelled and KindTimeout; any other non-nil error is KindProcess.
func KindOf(err error) Kind {
	if err == nil {
		return 0
	}
	if f, ok := AsFailure(err); ok {
		return f.Kind
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, context.Canceled):
		return KindCancelled
	}
	return KindProcess
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	return s
}
