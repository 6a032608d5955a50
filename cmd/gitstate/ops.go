package main

import (
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/gitstate/internal/repository"
	"github.com/dshills/gitstate/internal/task"
)

// opResult is the output of a repository command.
type opResult struct {
	Operation   string   `json:"operation"`
	Target      string   `json:"target,omitempty"`
	Output      string   `json:"output,omitempty"`
	Invalidated []string `json:"invalidated"`
	Duration    string   `json:"duration"`
}

// runOp opens a session, submits one operation through submit and waits
// for it and for the refresh it triggers.
func runOp(cmd *cobra.Command, submit func(*repository.Coordinator) (task.Handle[string], error)) (err error) {
	s, err := openSession(cmd, false)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()

	start := time.Now()
	h, err := submit(s.coord)
	if err != nil {
		return userError(err)
	}
	out, err := h.Wait(cmd.Context())
	if err != nil {
		return err
	}
	if err := s.coord.WaitForEvents(cmd.Context()); err != nil {
		return err
	}

	res := opResult{Output: strings.TrimSpace(out), Duration: time.Since(start).Round(time.Millisecond).String()}
	if r, ok := s.last.get(); ok {
		res.Operation = r.Operation.String()
		res.Target = r.Target
		for _, c := range r.Invalidated.Slice() {
			res.Invalidated = append(res.Invalidated, c.String())
		}
	}

	p := newPrinter(cmd)
	if p.json {
		return p.writeJSON(res)
	}
	if res.Output != "" {
		p.printf("%s\n", res.Output)
	}
	p.printf("%s %s %s\n",
		p.style.Success.Render("done"),
		strings.TrimSpace(res.Operation+" "+res.Target),
		p.style.Dim.Render("("+res.Duration+")"))
	return nil
}

func newCommitCmd() *cobra.Command {
	var (
		message string
		body    string
		all     bool
	)
	cmd := &cobra.Command{
		Use:   "commit [paths...]",
		Short: "Commit paths, or every change with --all",
		Example: `  gitstate commit -m "Fix parser" parser.go
  gitstate commit --all -m "Update docs"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOp(cmd, func(c *repository.Coordinator) (task.Handle[string], error) {
				if all {
					return c.CommitAllFiles(message, body)
				}
				return c.CommitFiles(args, message, body)
			})
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "Commit subject")
	cmd.Flags().StringVar(&body, "body", "", "Commit body")
	cmd.Flags().BoolVarP(&all, "all", "a", false, "Stage and commit every change")
	return cmd
}

func newSwitchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "switch <branch>",
		Short: "Switch to a branch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOp(cmd, func(c *repository.Coordinator) (task.Handle[string], error) {
				return c.SwitchBranch(args[0])
			})
		},
	}
}

func newBranchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "branch",
		Short: "Create or delete branches",
	}

	var base string
	create := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a branch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOp(cmd, func(c *repository.Coordinator) (task.Handle[string], error) {
				return c.CreateBranch(args[0], base)
			})
		},
	}
	create.Flags().StringVar(&base, "from", "", "Start point (default HEAD)")

	var force bool
	del := &cobra.Command{
		Use:     "delete <name>",
		Aliases: []string{"rm"},
		Short:   "Delete a branch",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOp(cmd, func(c *repository.Coordinator) (task.Handle[string], error) {
				return c.DeleteBranch(args[0], force)
			})
		},
	}
	del.Flags().BoolVarP(&force, "force", "f", false, "Delete even if not merged")

	cmd.AddCommand(create, del)
	return cmd
}

func newFetchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fetch [remote]",
		Short: "Fetch from a remote, or every remote",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOp(cmd, func(c *repository.Coordinator) (task.Handle[string], error) {
				return c.Fetch(argAt(args, 0))
			})
		},
	}
}

func newPullCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pull [remote [branch]]",
		Short: "Pull into the current branch",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOp(cmd, func(c *repository.Coordinator) (task.Handle[string], error) {
				return c.Pull(argAt(args, 0), argAt(args, 1))
			})
		},
	}
}

func newPushCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "push [remote [branch]]",
		Short: "Push the current branch",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOp(cmd, func(c *repository.Coordinator) (task.Handle[string], error) {
				return c.Push(argAt(args, 0), argAt(args, 1))
			})
		},
	}
}

func newRemoteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remote",
		Short: "Add or remove remotes",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "add <name> <url>",
			Short: "Add a remote",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runOp(cmd, func(c *repository.Coordinator) (task.Handle[string], error) {
					return c.RemoteAdd(args[0], args[1])
				})
			},
		},
		&cobra.Command{
			Use:     "remove <name>",
			Aliases: []string{"rm"},
			Short:   "Remove a remote",
			Args:    cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runOp(cmd, func(c *repository.Coordinator) (task.Handle[string], error) {
					return c.RemoteRemove(args[0])
				})
			},
		},
	)
	return cmd
}

func argAt(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}

// lastCommand keeps the most recent command report.
type lastCommand struct {
	next repository.Recorder
	mu   sync.Mutex
	r    repository.CommandReport
	ok   bool
}

func (l *lastCommand) RecordCycle(r repository.CycleReport) {
	if l.next != nil {
		l.next.RecordCycle(r)
	}
}

func (l *lastCommand) RecordCommand(r repository.CommandReport) {
	l.mu.Lock()
	l.r, l.ok = r, true
	l.mu.Unlock()
	if l.next != nil {
		l.next.RecordCommand(r)
	}
}

func (l *lastCommand) get() (repository.CommandReport, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r, l.ok
}
