package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/gitstate/internal/cache"
	"github.com/dshills/gitstate/internal/git"
	"github.com/dshills/gitstate/internal/task"
)

// Submit schedules op on its affinity lane. The handle yields git's stdout.
//
// On success the operation's invalidation set is applied before the task
// completes, so a WaitForEvents after Wait covers its notifications. A
// failed operation invalidates nothing, and the watcher batches of the
// writes git made before failing are dropped like those of a successful one.
func (c *Coordinator) Submit(op git.Operation) (task.Handle[string], error) {
	c.mu.Lock()
	stopped := c.stopped
	c.mu.Unlock()
	if stopped {
		return task.Handle[string]{}, ErrStopped
	}

	id := uuid.NewString()
	return task.Schedule(c.sched, op.String(), op.Affinity, func(ctx context.Context) (string, error) {
		report := CommandReport{
			ID:        id,
			Operation: op.Kind,
			Target:    op.Target,
			Started:   time.Now(),
		}

		scope := c.suppress.begin(op.Invalidates)
		out, err := c.backend.Run(ctx, op)
		c.suppress.end(scope)

		report.Duration = time.Since(report.Started)
		report.Err = err
		if err != nil {
			c.logger.Warn("operation failed", "op", op.String(), "error", err)
		} else {
			report.Invalidated = op.Invalidates
			c.logger.Info("operation finished", "op", op.String(), "duration", report.Duration)
			c.invalidate(op.Invalidates, op.Kind.String())
		}
		c.recorder.RecordCommand(report)
		return out, err
	})
}

func (c *Coordinator) submit(op git.Operation, err error) (task.Handle[string], error) {
	if err != nil {
		return task.Handle[string]{}, err
	}
	return c.Submit(op)
}

// CommitFiles stages and commits paths.
func (c *Coordinator) CommitFiles(paths []string, message, body string) (task.Handle[string], error) {
	return c.submit(git.CommitFiles(paths, message, body))
}

// CommitAllFiles stages and commits every change.
func (c *Coordinator) CommitAllFiles(message, body string) (task.Handle[string], error) {
	return c.submit(git.CommitAllFiles(message, body))
}

// SwitchBranch checks out name.
func (c *Coordinator) SwitchBranch(name string) (task.Handle[string], error) {
	return c.submit(git.SwitchBranch(name))
}

// CreateBranch creates name at baseRef, or at HEAD when empty.
func (c *Coordinator) CreateBranch(name, baseRef string) (task.Handle[string], error) {
	return c.submit(git.CreateBranch(name, baseRef))
}

// DeleteBranch deletes a local branch.
func (c *Coordinator) DeleteBranch(name string, force bool) (task.Handle[string], error) {
	return c.submit(git.DeleteBranch(name, force))
}

// Fetch fetches remote, or the default remote when empty.
func (c *Coordinator) Fetch(remote string) (task.Handle[string], error) {
	return c.submit(git.Fetch(remote))
}

// Pull pulls branch from remote, or the upstream when both are empty.
func (c *Coordinator) Pull(remote, branch string) (task.Handle[string], error) {
	return c.submit(git.Pull(remote, branch))
}

// Push pushes branch to remote.
func (c *Coordinator) Push(remote, branch string) (task.Handle[string], error) {
	return c.submit(git.Push(remote, branch))
}

// RemoteAdd adds a remote.
func (c *Coordinator) RemoteAdd(name, url string) (task.Handle[string], error) {
	return c.submit(git.RemoteAdd(name, url))
}

// RemoteRemove removes a remote.
func (c *Coordinator) RemoteRemove(name string) (task.Handle[string], error) {
	return c.submit(git.RemoteRemove(name))
}

// Invalidated reports the categories a successful op marks stale, closure
// included.
func (c *Coordinator) Invalidated(op git.Operation) cache.Set {
	return c.store.Graph().Closure(op.Invalidates)
}
