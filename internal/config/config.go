package config

import (
	"time"
)

// Config is the complete gitstate configuration.
type Config struct {
	Git         GitConfig         `toml:"git" yaml:"git"`
	Watcher     WatcherConfig     `toml:"watcher" yaml:"watcher"`
	Coordinator CoordinatorConfig `toml:"coordinator" yaml:"coordinator"`
	Logging     LoggingConfig     `toml:"logging" yaml:"logging"`
	Journal     JournalConfig     `toml:"journal" yaml:"journal"`
}

// GitConfig configures how git is run.
type GitConfig struct {
	// Executable is the git binary, looked up in PATH if not absolute.
	Executable string `toml:"executable" yaml:"executable"`

	// Env is extra KEY=VALUE entries for every git invocation.
	Env []string `toml:"env" yaml:"env"`

	// LogLimit is the number of commits kept in the cached log.
	LogLimit int `toml:"log_limit" yaml:"log_limit"`

	QueryTimeout     Duration `toml:"query_timeout" yaml:"query_timeout"`
	OperationTimeout Duration `toml:"operation_timeout" yaml:"operation_timeout"`
	NetworkTimeout   Duration `toml:"network_timeout" yaml:"network_timeout"`

	// KillGrace is how long a cancelled git process gets before SIGKILL.
	KillGrace Duration `toml:"kill_grace" yaml:"kill_grace"`
}

// WatcherConfig configures file system watching.
type WatcherConfig struct {
	Enabled bool `toml:"enabled" yaml:"enabled"`

	Debounce Duration `toml:"debounce" yaml:"debounce"`
	MaxWait  Duration `toml:"max_wait" yaml:"max_wait"`

	// Ignore holds gitignore-style patterns applied on top of .gitignore.
	Ignore []string `toml:"ignore" yaml:"ignore"`

	// MaxWatches bounds the number of watched directories. Zero is unlimited.
	MaxWatches int `toml:"max_watches" yaml:"max_watches"`
}

// CoordinatorConfig configures settling and refresh.
type CoordinatorConfig struct {
	Settle    Duration `toml:"settle" yaml:"settle"`
	MaxSettle Duration `toml:"max_settle" yaml:"max_settle"`

	// SuppressMargin is added to the watcher debounce to get the window in
	// which an operation's own writes are ignored.
	SuppressMargin Duration `toml:"suppress_margin" yaml:"suppress_margin"`

	MaxParallelism int `toml:"max_parallelism" yaml:"max_parallelism"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	// Level is debug, info, warn or error.
	Level string `toml:"level" yaml:"level"`

	// Format is text or json.
	Format string `toml:"format" yaml:"format"`

	// File receives logs instead of stderr when set.
	File string `toml:"file" yaml:"file"`
}

// JournalConfig configures the on-disk history.
type JournalConfig struct {
	Enabled bool `toml:"enabled" yaml:"enabled"`

	// Path is the sqlite database. Empty means the user cache directory.
	Path string `toml:"path" yaml:"path"`

	// Retain is the number of cycles and commands kept. Zero keeps all.
	Retain int `toml:"retain" yaml:"retain"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Git: GitConfig{
			Executable:       "git",
			LogLimit:         50,
			QueryTimeout:     Duration(30 * time.Second),
			OperationTimeout: Duration(2 * time.Minute),
			NetworkTimeout:   Duration(10 * time.Minute),
			KillGrace:        Duration(2 * time.Second),
		},
		Watcher: WatcherConfig{
			Enabled:  true,
			Debounce: Duration(100 * time.Millisecond),
			MaxWait:  Duration(time.Second),
		},
		Coordinator: CoordinatorConfig{
			Settle:         Duration(25 * time.Millisecond),
			MaxSettle:      Duration(500 * time.Millisecond),
			SuppressMargin: Duration(150 * time.Millisecond),
			MaxParallelism: 4,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Journal: JournalConfig{
			Enabled: true,
			Retain:  1000,
		},
	}
}

// SuppressWindow is the watcher debounce plus the suppression margin.
func (c Config) SuppressWindow() time.Duration {
	return c.Watcher.Debounce.Std() + c.Coordinator.SuppressMargin.Std()
}
