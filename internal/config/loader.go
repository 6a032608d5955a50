package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "GITSTATE_"

// fileNames are looked up, in order, in each search directory.
var fileNames = []string{".gitstate.toml", ".gitstate.yaml", ".gitstate.yml"}

// userFileNames are looked up in the user config directory.
var userFileNames = []string{"config.toml", "config.yaml", "config.yml"}

// Loader resolves the configuration: defaults, then one file, then the
// environment, then validation.
type Loader struct {
	// Path is an explicit config file. It must exist when set.
	Path string

	// SearchDirs are checked for .gitstate.{toml,yaml,yml} when Path is
	// empty, followed by the user config directory.
	SearchDirs []string

	// UserDir overrides the user config directory. Empty means
	// os.UserConfigDir()/gitstate.
	UserDir string

	// LookupEnv reads the environment. Nil means os.LookupEnv.
	LookupEnv func(string) (string, bool)
}

// Load resolves the configuration with default search rules. path may be
// empty.
func Load(path string, searchDirs ...string) (Config, error) {
	cfg, _, err := Loader{Path: path, SearchDirs: searchDirs}.Load()
	return cfg, err
}

// Load returns the resolved configuration and the file it came from, if any.
func (l Loader) Load() (Config, string, error) {
	cfg := Default()

	path, err := l.find()
	if err != nil {
		return cfg, "", err
	}
	if path != "" {
		if err := DecodeFile(path, &cfg); err != nil {
			return cfg, path, err
		}
	}

	lookup := l.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if err := ApplyEnv(&cfg, lookup); err != nil {
		return cfg, path, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, path, err
	}
	return cfg, path, nil
}

func (l Loader) find() (string, error) {
	if l.Path != "" {
		if _, err := os.Stat(l.Path); err != nil {
			return "", fmt.Errorf("config file: %w", err)
		}
		return l.Path, nil
	}
	for _, dir := range l.SearchDirs {
		if p := firstExisting(dir, fileNames); p != "" {
			return p, nil
		}
	}
	userDir := l.UserDir
	if userDir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return "", nil
		}
		userDir = filepath.Join(base, "gitstate")
	}
	return firstExisting(userDir, userFileNames), nil
}

func firstExisting(dir string, names []string) string {
	for _, name := range names {
		p := filepath.Join(dir, name)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p
		}
	}
	return ""
}

// DecodeFile decodes the TOML or YAML file at path over cfg. Unknown keys
// are errors.
func DecodeFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config file: %w", err)
		}
		return fmt.Errorf("reading config file %s: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = decodeTOML(data, cfg)
	case ".yaml", ".yml":
		err = decodeYAML(data, cfg)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
	if err != nil {
		return &ParseError{Path: path, Err: err}
	}
	return nil
}

func decodeTOML(data []byte, cfg *Config) error {
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(cfg)
}

func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// envSetter applies one environment variable.
type envSetter func(cfg *Config, value string) error

var envSetters = map[string]envSetter{
	"GIT":               func(c *Config, v string) error { c.Git.Executable = v; return nil },
	"LOG_LIMIT":         intSetter(func(c *Config) *int { return &c.Git.LogLimit }),
	"QUERY_TIMEOUT":     durationSetter(func(c *Config) *Duration { return &c.Git.QueryTimeout }),
	"OPERATION_TIMEOUT": durationSetter(func(c *Config) *Duration { return &c.Git.OperationTimeout }),
	"NETWORK_TIMEOUT":   durationSetter(func(c *Config) *Duration { return &c.Git.NetworkTimeout }),
	"WATCH":             boolSetter(func(c *Config) *bool { return &c.Watcher.Enabled }),
	"DEBOUNCE":          durationSetter(func(c *Config) *Duration { return &c.Watcher.Debounce }),
	"SETTLE":            durationSetter(func(c *Config) *Duration { return &c.Coordinator.Settle }),
	"MAX_PARALLELISM":   intSetter(func(c *Config) *int { return &c.Coordinator.MaxParallelism }),
	"LOG_LEVEL":         func(c *Config, v string) error { c.Logging.Level = strings.ToLower(v); return nil },
	"LOG_FORMAT":        func(c *Config, v string) error { c.Logging.Format = strings.ToLower(v); return nil },
	"LOG_FILE":          func(c *Config, v string) error { c.Logging.File = v; return nil },
	"JOURNAL":           boolSetter(func(c *Config) *bool { return &c.Journal.Enabled }),
	"JOURNAL_PATH":      func(c *Config, v string) error { c.Journal.Path = v; return nil },
}

// EnvVars returns the supported environment variable names, sorted.
func EnvVars() []string {
	out := make([]string, 0, len(envSetters))
	for name := range envSetters {
		out = append(out, EnvPrefix+name)
	}
	slices.Sort(out)
	return out
}

// ApplyEnv applies GITSTATE_* overrides read through lookup.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	var errs []error
	for _, name := range EnvVars() {
		v, ok := lookup(name)
		if !ok {
			continue
		}
		if err := envSetters[strings.TrimPrefix(name, EnvPrefix)](cfg, v); err != nil {
			errs = append(errs, &ParseError{Path: name, Err: err})
		}
	}
	return errors.Join(errs...)
}

func intSetter(field func(*Config) *int) envSetter {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*field(c) = n
		return nil
	}
}

func boolSetter(field func(*Config) *bool) envSetter {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*field(c) = b
		return nil
	}
}

func durationSetter(field func(*Config) *Duration) envSetter {
	return func(c *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*field(c) = Duration(d)
		return nil
	}
}
