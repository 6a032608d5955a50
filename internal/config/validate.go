package config

import (
	"fmt"
	"slices"
)

var (
	logLevels  = []string{"debug", "info", "warn", "error"}
	logFormats = []string{"text", "json"}
)

// Validate reports every out-of-range setting as a *ValidationError.
func (c Config) Validate() error {
	var fields []FieldError
	bad := func(field, format string, args ...any) {
		fields = append(fields, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if c.Git.Executable == "" {
		bad("git.executable", "must not be empty")
	}
	if c.Git.LogLimit <= 0 {
		bad("git.log_limit", "must be positive, got %d", c.Git.LogLimit)
	}
	for name, d := range map[string]Duration{
		"git.query_timeout":     c.Git.QueryTimeout,
		"git.operation_timeout": c.Git.OperationTimeout,
		"git.network_timeout":   c.Git.NetworkTimeout,
		"git.kill_grace":        c.Git.KillGrace,
	} {
		if d < 0 {
			bad(name, "must not be negative")
		}
	}

	if c.Watcher.Enabled && c.Watcher.Debounce <= 0 {
		bad("watcher.debounce", "must be positive when watching")
	}
	if c.Watcher.MaxWait != 0 && c.Watcher.MaxWait < c.Watcher.Debounce {
		bad("watcher.max_wait", "must be at least the debounce (%s)", c.Watcher.Debounce)
	}
	if c.Watcher.MaxWatches < 0 {
		bad("watcher.max_watches", "must not be negative")
	}

	if c.Coordinator.Settle <= 0 {
		bad("coordinator.settle", "must be positive")
	}
	if c.Coordinator.MaxSettle != 0 && c.Coordinator.MaxSettle < c.Coordinator.Settle {
		bad("coordinator.max_settle", "must be at least the settle period (%s)", c.Coordinator.Settle)
	}
	if c.Coordinator.SuppressMargin < 0 {
		bad("coordinator.suppress_margin", "must not be negative")
	}
	if c.Coordinator.MaxParallelism < 1 {
		bad("coordinator.max_parallelism", "must be at least 1, got %d", c.Coordinator.MaxParallelism)
	}

	if !slices.Contains(logLevels, c.Logging.Level) {
		bad("logging.level", "must be one of %v, got %q", logLevels, c.Logging.Level)
	}
	if !slices.Contains(logFormats, c.Logging.Format) {
		bad("logging.format", "must be one of %v, got %q", logFormats, c.Logging.Format)
	}

	if c.Journal.Retain < 0 {
		bad("journal.retain", "must not be negative")
	}

	if len(fields) == 0 {
		return nil
	}
	slices.SortFunc(fields, func(a, b FieldError) int {
		switch {
		case a.Field < b.Field:
			return -1
		case a.Field > b.Field:
			return 1
		}
		return 0
	})
	return &ValidationError{Fields: fields}
}
