package git

import (
	"errors"
	"strings"

	"github.com/dshills/gitstate/internal/process"
)

// Error types for git operations.
var (
	// ErrNotRepository indicates the path is not a git repository.
	ErrNotRepository = errors.New("not a git repository")

	// ErrRepositoryNotFound indicates no repository was found above a path.
	ErrRepositoryNotFound = errors.New("repository not found")

	// ErrEmptyMessage indicates a commit without a message.
	ErrEmptyMessage = errors.New("empty commit message")

	// ErrNoPaths indicates a path-limited commit with no paths.
	ErrNoPaths = errors.New("no paths to commit")

	// ErrInvalidName indicates an empty or malformed branch or remote name.
	ErrInvalidName = errors.New("invalid name")
)

// stderr fragments git prints when it refuses a change.
var conflictMarkers = []string{
	"CONFLICT",
	"conflict",
	"diverging branches",
	"have diverged",
	"non-fast-forward",
	"[rejected]",
	"would be overwritten",
	"not fully merged",
	"already exists",
	"Not possible to fast-forward",
}

// stderr fragments git prints when a target does not exist.
var notFoundMarkers = []string{
	"unknown revision",
	"did not match any",
	"invalid reference",
	"No such remote",
	"no such remote",
	"does not appear to be a git repository",
	"couldn't find remote ref",
	"not found",
	"not a valid object name",
}

// classify refines a failed git command into a conflict or not-found
// failure when its stderr says so. Timeouts and cancellations pass through.
func classify(err error) error {
	f, ok := process.AsFailure(err)
	if !ok || f.Kind != process.KindProcess {
		return err
	}
	if k := kindFromStderr(f.Stderr); k != 0 {
		return f.WithKind(k)
	}
	return f
}

func kindFromStderr(stderr string) process.Kind {
	for _, m := range notFoundMarkers {
		if strings.Contains(stderr, m) {
			return process.KindNotFound
		}
	}
	for _, m := range conflictMarkers {
		if strings.Contains(stderr, m) {
			return process.KindConflict
		}
	}
	return 0
}
