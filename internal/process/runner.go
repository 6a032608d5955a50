package process

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// Command describes one invocation of an external executable.
type Command struct {
	// Name labels the command in logs and errors. Defaults to the executable
	// base name followed by the first argument.
	Name string

	// Executable is the program to run. Empty means the runner default.
	Executable string

	// Dir is the working directory.
	Dir string

	Args []string

	// Env holds extra KEY=VALUE pairs appended to the inherited environment.
	Env []string

	// Stdin is written to the process standard input when non-empty.
	Stdin string

	// Timeout bounds the run. Zero means the runner default.
	Timeout time.Duration

	// OnLine, if set, receives every stdout line as it is read.
	OnLine func(line string)
}

// Label returns the name used for the command in logs and errors.
func (c Command) Label() string {
	if c.Name != "" {
		return c.Name
	}
	label := filepath.Base(c.Executable)
	if len(c.Args) > 0 {
		label += " " + c.Args[0]
	}
	return label
}

// Result is the captured output of a finished command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Executor runs commands.
type Executor interface {
	Execute(ctx context.Context, cmd Command) (*Result, error)
}

// Parser converts command output into a typed value.
type Parser[T any] func(stdout string) (T, error)

// Run executes cmd and parses its stdout. A parse error is reported as a
// KindProcess failure.
func Run[T any](ctx context.Context, ex Executor, cmd Command, parse Parser[T]) (T, error) {
	var zero T
	res, err := ex.Execute(ctx, cmd)
	if err != nil {
		return zero, err
	}
	v, err := parse(res.Stdout)
	if err != nil {
		return zero, &Failure{
			Kind:     KindProcess,
			Command:  cmd.Label(),
			ExitCode: res.ExitCode,
			Stderr:   res.Stderr,
			Err:      fmt.Errorf("parse output: %w", err),
		}
	}
	return v, nil
}

// Runner executes commands as supervised child processes.
//
// Stdout is consumed line by line and cancellation is checked between reads.
// When the context ends the process group receives SIGTERM and, if it is
// still running after the supervisor grace period, SIGKILL.
type Runner struct {
	executable string
	env        []string
	timeout    time.Duration
	supervisor *Supervisor
	logger     *slog.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithExecutable sets the executable used when a command names none.
func WithExecutable(path string) RunnerOption {
	return func(r *Runner) {
		r.executable = path
	}
}

// WithEnv adds KEY=VALUE pairs to every command.
func WithEnv(env ...string) RunnerOption {
	return func(r *Runner) {
		r.env = append(r.env, env...)
	}
}

// WithTimeout sets the default per-command timeout. Zero disables it.
func WithTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) {
		r.timeout = d
	}
}

// WithSupervisor sets the supervisor that tracks started processes.
func WithSupervisor(s *Supervisor) RunnerOption {
	return func(r *Runner) {
		r.supervisor = s
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = l
	}
}

// NewRunner creates a runner.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{}
	for _, opt := range opts {
		opt(r)
	}
	if r.supervisor == nil {
		r.supervisor = NewSupervisor()
	}
	if r.logger == nil {
		r.logger = slog.New(slog.DiscardHandler)
	}
	return r
}

// Supervisor returns the supervisor tracking this runner's processes.
func (r *Runner) Supervisor() *Supervisor {
	return r.supervisor
}

// Execute runs c to completion. On failure the returned error is a *Failure
// and the Result, when the process started, holds whatever was captured.
func (r *Runner) Execute(ctx context.Context, c Command) (*Result, error) {
	if c.Executable == "" {
		c.Executable = r.executable
	}
	label := c.Label()
	if c.Executable == "" {
		return nil, &Failure{Kind: KindProcess, Command: label, ExitCode: -1, Err: errors.New("no executable")}
	}
	if err := ctx.Err(); err != nil {
		return nil, contextFailure(label, err, "")
	}

	timeout := c.Timeout
	if timeout == 0 {
		timeout = r.timeout
	}
	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.Command(c.Executable, c.Args...)
	cmd.Dir = c.Dir
	cmd.Env = append(append(os.Environ(), r.env...), c.Env...)
	if c.Stdin != "" {
		cmd.Stdin = strings.NewReader(c.Stdin)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	pr, pw := io.Pipe()
	cmd.Stdout = pw

	proc, err := r.supervisor.Start(label, cmd)
	if err != nil {
		_ = pw.Close()
		return nil, &Failure{Kind: KindProcess, Command: label, ExitCode: -1, Err: err}
	}
	go func() {
		<-proc.Done()
		_ = pw.Close()
	}()
	stop := context.AfterFunc(runCtx, func() {
		proc.Stop(r.supervisor.Grace())
	})
	defer stop()

	r.logger.Debug("process started", "command", label, "id", proc.ID, "pid", proc.PID(), "dir", c.Dir)

	var out strings.Builder
	reader := bufio.NewReader(pr)
	interrupted := false
	for {
		if runCtx.Err() != nil {
			interrupted = true
			break
		}
		line, err := reader.ReadString('\n')
		out.WriteString(line)
		if line != "" && c.OnLine != nil {
			c.OnLine(strings.TrimRight(line, "\r\n"))
		}
		if err != nil {
			break
		}
	}
	if interrupted {
		// unblock the copy goroutine so Wait can return
		_ = pr.CloseWithError(runCtx.Err())
	}
	<-proc.Done()

	res := &Result{
		Stdout:   out.String(),
		Stderr:   stderr.String(),
		ExitCode: proc.ExitCode(),
		Duration: proc.Runtime(),
	}
	exitErr := proc.ExitError()
	r.logger.Debug("process exited",
		"command", label, "id", proc.ID, "exit", res.ExitCode, "state", proc.State(), "duration", res.Duration)

	switch {
	case interrupted || (exitErr != nil && runCtx.Err() != nil):
		return res, contextFailure(label, runCtx.Err(), res.Stderr)
	case exitErr != nil:
		return res, &Failure{Kind: KindProcess, Command: label, ExitCode: res.ExitCode, Stderr: res.Stderr, Err: exitErr}
	}
	return res, nil
}

func contextFailure(label string, err error, stderr string) *Failure {
	kind := KindCancelled
	if errors.Is(err, context.DeadlineExceeded) {
		kind = KindTimeout
	}
	return &Failure{Kind: kind, Command: label, ExitCode: -1, Stderr: stderr, Err: err}
}
