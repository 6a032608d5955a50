package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dshills/gitstate/internal/process"
)

// DefaultLogLimit is the number of commits kept by the Log query.
const DefaultLogLimit = 50

// Options configures a Repository.
type Options struct {
	// LogLimit bounds the Log query. Default DefaultLogLimit.
	LogLimit int

	// QueryTimeout bounds read-only queries. Zero means the executor default.
	QueryTimeout time.Duration

	// OperationTimeout bounds local mutating commands.
	OperationTimeout time.Duration

	// NetworkTimeout bounds fetch, pull and push.
	NetworkTimeout time.Duration
}

// Repository runs git commands against one working tree.
type Repository struct {
	root      string
	gitDir    string
	commonDir string

	exec process.Executor
	opts Options
}

// Open opens the repository whose working tree root is root.
func Open(root string, ex process.Executor, opts Options) (*Repository, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	gitDir, err := resolveGitDir(abs)
	if err != nil {
		return nil, err
	}
	commonDir, err := resolveCommonDir(gitDir)
	if err != nil {
		return nil, err
	}
	if opts.LogLimit <= 0 {
		opts.LogLimit = DefaultLogLimit
	}
	return &Repository{
		root:      abs,
		gitDir:    gitDir,
		commonDir: commonDir,
		exec:      ex,
		opts:      opts,
	}, nil
}

// Discover opens the repository containing path by walking up the
// directory tree looking for .git.
func Discover(path string, ex process.Executor, opts Options) (*Repository, error) {
	root, err := FindRoot(path)
	if err != nil {
		return nil, err
	}
	return Open(root, ex, opts)
}

// FindRoot returns the working tree root containing path.
func FindRoot(path string) (string, error) {
	current, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("abs path: %w", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(current, ".git")); err == nil {
			return current, nil
		}
		parent := filepath.Dir(current)
		if parent == current {
			return "", fmt.Errorf("%w: %s", ErrRepositoryNotFound, path)
		}
		current = parent
	}
}

// resolveGitDir returns the git directory of a working tree. .git is either
// the directory itself or, in linked worktrees and submodules, a file
// holding "gitdir: <path>".
func resolveGitDir(root string) (string, error) {
	dotGit := filepath.Join(root, ".git")
	info, err := os.Stat(dotGit)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotRepository, root)
		}
		return "", fmt.Errorf("stat .git: %w", err)
	}
	if info.IsDir() {
		return dotGit, nil
	}

	content, err := os.ReadFile(dotGit)
	if err != nil {
		return "", fmt.Errorf("read .git file: %w", err)
	}
	content = bytes.TrimSpace(content)
	if !bytes.HasPrefix(content, []byte("gitdir:")) {
		return "", fmt.Errorf("%w: %s", ErrNotRepository, root)
	}
	dir := strings.TrimSpace(string(content[len("gitdir:"):]))
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(root, dir)
	}
	return filepath.Clean(dir), nil
}

// resolveCommonDir follows the commondir file of a linked worktree's git
// directory. Without one the git directory is its own common directory.
func resolveCommonDir(gitDir string) (string, error) {
	content, err := os.ReadFile(filepath.Join(gitDir, "commondir"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return gitDir, nil
		}
		return "", fmt.Errorf("read commondir: %w", err)
	}
	dir := strings.TrimSpace(string(content))
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(gitDir, dir)
	}
	return filepath.Clean(dir), nil
}

// Root returns the working tree root.
func (r *Repository) Root() string {
	return r.root
}

// GitDir returns the per-worktree git directory.
func (r *Repository) GitDir() string {
	return r.gitDir
}

// CommonDir returns the git directory shared by all worktrees.
func (r *Repository) CommonDir() string {
	return r.commonDir
}

// LogLimit returns the Log query bound.
func (r *Repository) LogLimit() int {
	return r.opts.LogLimit
}

// baseEnv keeps git from prompting and its messages in a stable language.
var baseEnv = []string{"GIT_TERMINAL_PROMPT=0", "LC_ALL=C"}

// queryCommand builds a read-only command. GIT_OPTIONAL_LOCKS=0 keeps
// status from refreshing the index, so queries never take index.lock.
func (r *Repository) queryCommand(args ...string) process.Command {
	return process.Command{
		Name:    "git " + args[0],
		Dir:     r.root,
		Args:    args,
		Env:     append([]string{"GIT_OPTIONAL_LOCKS=0"}, baseEnv...),
		Timeout: r.opts.QueryTimeout,
	}
}

// query runs a read-only command and returns its stdout.
func (r *Repository) query(ctx context.Context, args ...string) (string, error) {
	res, err := r.exec.Execute(ctx, r.queryCommand(args...))
	if err != nil {
		return "", err
	}
	return res.Stdout, nil
}

// exitedWith reports whether err is a normal non-zero exit with the code.
func exitedWith(err error, code int) bool {
	f, ok := process.AsFailure(err)
	return ok && f.Kind == process.KindProcess && f.ExitCode == code
}
