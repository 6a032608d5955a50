package git

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/dshills/gitstate/internal/cache"
	"github.com/dshills/gitstate/internal/process"
	"github.com/dshills/gitstate/internal/task"
)

// OpKind identifies a mutating operation.
type OpKind int

// Operation kinds.
const (
	// OpCommitFiles commits a given set of paths.
	OpCommitFiles OpKind = iota + 1
	// OpCommitAll commits every change in the working tree.
	OpCommitAll
	OpSwitchBranch
	OpCreateBranch
	OpDeleteBranch
	OpFetch
	OpPull
	OpPush
	OpRemoteAdd
	OpRemoteRemove
)

var opNames = map[OpKind]string{
	OpCommitFiles:  "commit-files",
	OpCommitAll:    "commit-all",
	OpSwitchBranch: "switch-branch",
	OpCreateBranch: "create-branch",
	OpDeleteBranch: "delete-branch",
	OpFetch:        "fetch",
	OpPull:         "pull",
	OpPush:         "push",
	OpRemoteAdd:    "remote-add",
	OpRemoteRemove: "remote-remove",
}

// String returns the operation name.
func (k OpKind) String() string {
	if n, ok := opNames[k]; ok {
		return n
	}
	return fmt.Sprintf("op(%d)", int(k))
}

// opSpec is the lane and success invalidation set of an operation kind.
// A failed operation invalidates nothing.
type opSpec struct {
	affinity    task.Affinity
	invalidates cache.Set
}

var opSpecs = map[OpKind]opSpec{
	OpCommitFiles:  {task.Exclusive, cache.NewSet(cache.Status, cache.Log, cache.AheadBehind, cache.LocalBranches, cache.RemoteBranches)},
	OpCommitAll:    {task.Exclusive, cache.NewSet(cache.Status, cache.Log, cache.AheadBehind, cache.LocalBranches, cache.RemoteBranches)},
	OpSwitchBranch: {task.Exclusive, cache.NewSet(cache.CurrentBranch)},
	OpCreateBranch: {task.Exclusive, cache.NewSet(cache.LocalBranches, cache.RemoteBranches)},
	OpDeleteBranch: {task.Exclusive, cache.NewSet(cache.LocalBranches, cache.RemoteBranches)},
	OpFetch:        {task.ExclusiveNetwork, cache.NewSet(cache.RemoteBranches, cache.LocalBranches)},
	OpPull:         {task.Exclusive, cache.NewSet(cache.Status, cache.LocalBranches, cache.RemoteBranches, cache.Log)},
	OpPush:         {task.ExclusiveNetwork, cache.NewSet(cache.RemoteBranches, cache.LocalBranches)},
	OpRemoteAdd:    {task.Exclusive, cache.NewSet(cache.Remotes, cache.LocalBranches)},
	OpRemoteRemove: {task.Exclusive, cache.NewSet(cache.Remotes, cache.LocalBranches)},
}

// Step is one git invocation of an operation.
type Step struct {
	Args  []string
	Stdin string
}

// Operation describes a mutating command: which lane it needs, which git
// invocations it runs and what a successful run invalidates.
type Operation struct {
	Kind        OpKind
	Affinity    task.Affinity
	Invalidates cache.Set

	// Target names what the operation acts on, for logs.
	Target string

	Steps []Step
}

// String returns "kind target".
func (o Operation) String() string {
	if o.Target == "" {
		return o.Kind.String()
	}
	return o.Kind.String() + " " + o.Target
}

// Network reports whether the operation talks to a remote.
func (o Operation) Network() bool {
	return o.Affinity == task.ExclusiveNetwork || o.Kind == OpPull
}

func newOperation(k OpKind, target string, steps ...Step) Operation {
	spec := opSpecs[k]
	return Operation{
		Kind:        k,
		Affinity:    spec.affinity,
		Invalidates: spec.invalidates,
		Target:      target,
		Steps:       steps,
	}
}

// commitStep writes the message through stdin so it keeps its exact bytes.
func commitStep(message, body string, paths []string) (Step, error) {
	if strings.TrimSpace(message) == "" {
		return Step{}, ErrEmptyMessage
	}
	msg := message + "\n"
	if strings.TrimSpace(body) != "" {
		msg += "\n" + body + "\n"
	}
	args := []string{"-c", "i18n.commitencoding=utf8", "commit", "--file=-"}
	if len(paths) > 0 {
		args = append(append(args, "--"), paths...)
	}
	return Step{Args: args, Stdin: msg}, nil
}

// CommitFiles stages paths and commits only them.
func CommitFiles(paths []string, message, body string) (Operation, error) {
	if len(paths) == 0 {
		return Operation{}, ErrNoPaths
	}
	commit, err := commitStep(message, body, paths)
	if err != nil {
		return Operation{}, err
	}
	add := Step{Args: append([]string{"add", "-A", "--"}, paths...)}
	return newOperation(OpCommitFiles, strings.Join(paths, " "), add, commit), nil
}

// CommitAllFiles stages every change in the working tree and commits it.
func CommitAllFiles(message, body string) (Operation, error) {
	commit, err := commitStep(message, body, nil)
	if err != nil {
		return Operation{}, err
	}
	return newOperation(OpCommitAll, "", Step{Args: []string{"add", "-A"}}, commit), nil
}

// SwitchBranch checks out an existing branch.
func SwitchBranch(name string) (Operation, error) {
	if err := validName(name); err != nil {
		return Operation{}, err
	}
	return newOperation(OpSwitchBranch, name, Step{Args: []string{"checkout", name, "--"}}), nil
}

// CreateBranch creates name at baseRef, or at HEAD when baseRef is empty.
func CreateBranch(name, baseRef string) (Operation, error) {
	if err := validName(name); err != nil {
		return Operation{}, err
	}
	args := []string{"branch", name}
	if baseRef != "" {
		if err := validName(baseRef); err != nil {
			return Operation{}, err
		}
		args = append(args, baseRef)
	}
	return newOperation(OpCreateBranch, name, Step{Args: args}), nil
}

// DeleteBranch deletes a local branch. force deletes it even if unmerged.
func DeleteBranch(name string, force bool) (Operation, error) {
	if err := validName(name); err != nil {
		return Operation{}, err
	}
	flag := "-d"
	if force {
		flag = "-D"
	}
	return newOperation(OpDeleteBranch, name, Step{Args: []string{"branch", flag, name}}), nil
}

// Fetch fetches remote with pruning and tags. An empty remote means the
// default remote.
func Fetch(remote string) (Operation, error) {
	args := []string{"fetch", "--prune", "--tags"}
	if remote != "" {
		if err := validName(remote); err != nil {
			return Operation{}, err
		}
		args = append(args, remote)
	}
	return newOperation(OpFetch, remote, Step{Args: args}), nil
}

// Pull fetches and integrates branch from remote. Empty values use the
// upstream configuration.
func Pull(remote, branch string) (Operation, error) {
	args, target, err := remoteArgs([]string{"pull"}, remote, branch)
	if err != nil {
		return Operation{}, err
	}
	return newOperation(OpPull, target, Step{Args: args}), nil
}

// Push pushes branch to remote and records it as upstream.
func Push(remote, branch string) (Operation, error) {
	base := []string{"push"}
	if branch != "" {
		base = append(base, "--set-upstream")
	}
	args, target, err := remoteArgs(base, remote, branch)
	if err != nil {
		return Operation{}, err
	}
	return newOperation(OpPush, target, Step{Args: args}), nil
}

func remoteArgs(args []string, remote, branch string) ([]string, string, error) {
	if branch != "" && remote == "" {
		return nil, "", fmt.Errorf("%w: branch %q without remote", ErrInvalidName, branch)
	}
	for _, n := range []string{remote, branch} {
		if n == "" {
			continue
		}
		if err := validName(n); err != nil {
			return nil, "", err
		}
		args = append(args, n)
	}
	return args, strings.TrimSpace(remote + " " + branch), nil
}

// RemoteAdd configures a new remote.
func RemoteAdd(name, url string) (Operation, error) {
	if err := validName(name); err != nil {
		return Operation{}, err
	}
	if strings.TrimSpace(url) == "" || strings.HasPrefix(url, "-") {
		return Operation{}, fmt.Errorf("%w: url %q", ErrInvalidName, url)
	}
	return newOperation(OpRemoteAdd, name, Step{Args: []string{"remote", "add", name, url}}), nil
}

// RemoteRemove removes a remote and its remote-tracking branches.
func RemoteRemove(name string) (Operation, error) {
	if err := validName(name); err != nil {
		return Operation{}, err
	}
	return newOperation(OpRemoteRemove, name, Step{Args: []string{"remote", "remove", name}}), nil
}

// validName rejects names git would read as options or that cannot be refs.
func validName(name string) error {
	if name == "" || strings.HasPrefix(name, "-") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	for _, r := range name {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return fmt.Errorf("%w: %q", ErrInvalidName, name)
		}
	}
	return nil
}

// Run executes the operation's steps in order and stops at the first
// failure. Failures are refined into conflict and not-found kinds from
// git's stderr. It returns the combined stdout.
func (r *Repository) Run(ctx context.Context, op Operation) (string, error) {
	timeout := r.opts.OperationTimeout
	if op.Network() {
		timeout = r.opts.NetworkTimeout
	}

	var out strings.Builder
	for _, step := range op.Steps {
		cmd := process.Command{
			Name:    "git " + gitSubcommand(step.Args),
			Dir:     r.root,
			Args:    step.Args,
			Env:     baseEnv,
			Stdin:   step.Stdin,
			Timeout: timeout,
		}
		res, err := r.exec.Execute(ctx, cmd)
		if err != nil {
			return out.String(), classify(err)
		}
		out.WriteString(res.Stdout)
	}
	return out.String(), nil
}

// gitSubcommand skips leading -c key=value pairs.
func gitSubcommand(args []string) string {
	for i := 0; i < len(args); i++ {
		if args[i] == "-c" {
			i++
			continue
		}
		return args[i]
	}
	return ""
}
