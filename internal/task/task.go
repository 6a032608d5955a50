package task

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Func is the work of a task. It must honour ctx cancellation.
type Func func(ctx context.Context) (any, error)

// Task is a unit of work owned by a Scheduler from submission until it
// reaches a terminal state.
type Task struct {
	// ID is a unique identifier for this task.
	ID string

	// Name describes the task in logs.
	Name string

	// Affinity is the lane the task runs on.
	Affinity Affinity

	fn     Func
	ctx    context.Context
	cancel context.CancelFunc

	// onFinish is called once after the terminal state is recorded.
	onFinish func(*Task)

	mu         sync.Mutex
	state      State
	result     any
	err        error
	queuedAt   time.Time
	startedAt  time.Time
	finishedAt time.Time

	done chan struct{}
}

func newTask(parent context.Context, id, name string, aff Affinity, fn Func) *Task {
	ctx, cancel := context.WithCancel(parent)
	return &Task{
		ID:       id,
		Name:     name,
		Affinity: aff,
		fn:       fn,
		ctx:      ctx,
		cancel:   cancel,
		state:    StateQueued,
		queuedAt: time.Now(),
		done:     make(chan struct{}),
	}
}

// State returns the current state.
func (t *Task) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Err returns the task error once terminal.
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Result returns the value and error of a terminal task.
func (t *Task) Result() (any, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result, t.err
}

// Done returns a channel closed when the task reaches a terminal state.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the task is terminal or ctx ends. It returns the task
// error, or ctx.Err() if ctx ended first.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel requests cancellation. A queued task becomes Cancelled at once and
// never runs; a running task sees its context cancelled.
func (t *Task) Cancel() {
	t.mu.Lock()
	queued := t.state == StateQueued
	t.mu.Unlock()
	t.cancel()
	if queued {
		t.finish(StateCancelled, nil, t.cancelledErr(), true)
	}
}

// Times returns when the task was queued, started and finished. Zero values
// mean the step has not happened.
func (t *Task) Times() (queued, started, finished time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.queuedAt, t.startedAt, t.finishedAt
}

// Duration returns how long the task ran.
func (t *Task) Duration() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.startedAt.IsZero() || t.finishedAt.IsZero() {
		return 0
	}
	return t.finishedAt.Sub(t.startedAt)
}

// String implements fmt.Stringer.
func (t *Task) String() string {
	return fmt.Sprintf("%s[%s %s]", t.Name, t.Affinity, t.State())
}

func (t *Task) cancelledErr() error {
	return fmt.Errorf("%w: %s: %w", ErrCancelled, t.Name, context.Canceled)
}

// begin moves a queued task to Running. It returns false if the task was
// cancelled while queued.
func (t *Task) begin() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateQueued {
		return false
	}
	t.state = StateRunning
	t.startedAt = time.Now()
	return true
}

// complete records the outcome of the task function.
func (t *Task) complete(value any, err error) {
	switch {
	case err == nil:
		t.finish(StateCompleted, value, nil, false)
	case t.ctx.Err() != nil:
		t.finish(StateCancelled, value, err, false)
	default:
		t.finish(StateFailed, value, err, false)
	}
}

// finish records a terminal state once. fromQueue restricts the transition
// to tasks that have not started.
func (t *Task) finish(state State, value any, err error, fromQueue bool) {
	t.mu.Lock()
	if t.state.Terminal() || (fromQueue && t.state != StateQueued) {
		t.mu.Unlock()
		return
	}
	t.state = state
	t.result = value
	t.err = err
	t.finishedAt = time.Now()
	t.mu.Unlock()

	t.cancel()
	if t.onFinish != nil {
		t.onFinish(t)
	}
	close(t.done)
}

// Handle is a typed view of a scheduled task.
type Handle[T any] struct {
	task *Task
}

// Task returns the underlying task.
func (h Handle[T]) Task() *Task {
	return h.task
}

// ID returns the task ID.
func (h Handle[T]) ID() string {
	return h.task.ID
}

// State returns the task state.
func (h Handle[T]) State() State {
	return h.task.State()
}

// Done returns a channel closed when the task is terminal.
func (h Handle[T]) Done() <-chan struct{} {
	return h.task.Done()
}

// Cancel requests cancellation of the task.
func (h Handle[T]) Cancel() {
	h.task.Cancel()
}

// Wait blocks until the task is terminal and returns its typed result.
func (h Handle[T]) Wait(ctx context.Context) (T, error) {
	var zero T
	if err := h.task.Wait(ctx); err != nil {
		return zero, err
	}
	v, _ := h.task.Result()
	if v == nil {
		return zero, nil
	}
	typed, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("task %s: result is %T, not %T", h.task.Name, v, zero)
	}
	return typed, nil
}
