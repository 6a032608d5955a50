package watcher

import (
	"bufio"
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
)

// DefaultIgnorePatterns are editor and OS droppings that never matter to
// repository state.
var DefaultIgnorePatterns = []string{
	"*.swp",
	"*.swo",
	"*~",
	".DS_Store",
	"Thumbs.db",
}

// IgnoreRules matches slash-separated paths relative to the working tree
// against gitignore-style patterns:
//
//	*.log          any file named *.log at any depth
//	/build/        the build directory at the root only
//	docs/**/*.tmp  *.tmp anywhere below docs
//	!keep.log      re-include keep.log
//
// As in git, a path inside an ignored directory is ignored regardless of
// later negations.
type IgnoreRules struct {
	mu    sync.RWMutex
	rules []ignoreRule
}

type ignoreRule struct {
	raw      string
	segments []string
	negate   bool
	dirOnly  bool
	anchored bool
}

// NewIgnoreRules returns an empty rule set.
func NewIgnoreRules() *IgnoreRules {
	return &IgnoreRules{}
}

// Add parses one pattern line. Blank lines and comments are ignored.
func (r *IgnoreRules) Add(line string) {
	rule, ok := parseIgnoreLine(line)
	if !ok {
		return
	}
	r.mu.Lock()
	r.rules = append(r.rules, rule)
	r.mu.Unlock()
}

// AddLines adds several pattern lines.
func (r *IgnoreRules) AddLines(lines ...string) {
	for _, l := range lines {
		r.Add(l)
	}
}

// AddFile loads patterns from a file such as .gitignore. A missing file is
// not an error.
func (r *IgnoreRules) AddFile(name string) error {
	f, err := os.Open(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		r.Add(scanner.Text())
	}
	return scanner.Err()
}

// Len returns the number of rules.
func (r *IgnoreRules) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rules)
}

// Patterns returns the rules as written.
func (r *IgnoreRules) Patterns() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.rules))
	for i, rule := range r.rules {
		out[i] = rule.raw
	}
	return out
}

// Match reports whether rel is ignored. isDir tells whether rel itself is a
// directory; every parent is treated as one.
func (r *IgnoreRules) Match(rel string, isDir bool) bool {
	rel = strings.Trim(filepath.ToSlash(rel), "/")
	if rel == "" || rel == "." {
		return false
	}
	parts := strings.Split(path.Clean(rel), "/")

	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.rules) == 0 {
		return false
	}
	for i := 1; i < len(parts); i++ {
		if r.decide(parts[:i], true) {
			return true
		}
	}
	return r.decide(parts, isDir)
}

// decide applies the rules in order; the last matching rule wins.
func (r *IgnoreRules) decide(parts []string, isDir bool) bool {
	ignored := false
	for _, rule := range r.rules {
		if rule.matches(parts, isDir) {
			ignored = !rule.negate
		}
	}
	return ignored
}

func (rule ignoreRule) matches(parts []string, isDir bool) bool {
	if rule.dirOnly && !isDir {
		return false
	}
	if !rule.anchored {
		ok, _ := path.Match(rule.segments[0], parts[len(parts)-1])
		return ok
	}
	return matchSegments(rule.segments, parts)
}

func matchSegments(pat, parts []string) bool {
	for len(pat) > 0 {
		if pat[0] == "**" {
			rest := pat[1:]
			if len(rest) == 0 {
				return len(parts) > 0
			}
			for i := 0; i <= len(parts); i++ {
				if matchSegments(rest, parts[i:]) {
					return true
				}
			}
			return false
		}
		if len(parts) == 0 {
			return false
		}
		if ok, _ := path.Match(pat[0], parts[0]); !ok {
			return false
		}
		pat, parts = pat[1:], parts[1:]
	}
	return len(parts) == 0
}

func parseIgnoreLine(line string) (ignoreRule, bool) {
	line = strings.TrimRight(line, "\r")
	// trailing spaces are dropped unless escaped
	for strings.HasSuffix(line, " ") && !strings.HasSuffix(line, `\ `) {
		line = line[:len(line)-1]
	}
	if line == "" || strings.HasPrefix(line, "#") {
		return ignoreRule{}, false
	}

	rule := ignoreRule{raw: line}
	switch {
	case strings.HasPrefix(line, "!"):
		rule.negate = true
		line = line[1:]
	case strings.HasPrefix(line, `\!`), strings.HasPrefix(line, `\#`):
		line = line[1:]
	}
	line = strings.ReplaceAll(line, `\ `, " ")

	if strings.HasSuffix(line, "/") {
		rule.dirOnly = true
		line = strings.TrimRight(line, "/")
	}
	if strings.Contains(line, "/") {
		rule.anchored = true
		line = strings.TrimLeft(line, "/")
	}
	if line == "" {
		return ignoreRule{}, false
	}
	rule.segments = strings.Split(line, "/")
	return rule, true
}
