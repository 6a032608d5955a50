package task

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// Config configures a Scheduler.
type Config struct {
	// MaxParallelism bounds the Concurrent lane. Zero or less means 4.
	MaxParallelism int

	// Logger receives task lifecycle logs. Nil discards them.
	Logger *slog.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{MaxParallelism: 4}
}

// Listener receives task lifecycle events. Calls are made from the goroutine
// running the task and must not block.
type Listener interface {
	// TaskStarted is called when a task begins running.
	TaskStarted(t *Task)

	// TaskFinished is called when a task reaches a terminal state.
	TaskFinished(t *Task)
}

// Scheduler runs tasks on affinity lanes.
//
// Exclusive, ExclusiveNetwork and UIThread each have a single worker that
// runs tasks in submission order. Concurrent tasks run in parallel up to
// Config.MaxParallelism. The scheduler never retries or interprets errors.
type Scheduler struct {
	config Config
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	lanes map[Affinity]*serialLane
	sem   *semaphore.Weighted

	workers sync.WaitGroup

	mu      sync.Mutex
	stopped bool
	active  map[string]*Task
	idle    chan struct{}

	listenersMu sync.RWMutex
	listeners   []Listener
}

// NewScheduler creates a scheduler and starts its lane workers.
func NewScheduler(config Config) *Scheduler {
	if config.MaxParallelism <= 0 {
		config.MaxParallelism = 4
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		config: config,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		lanes:  make(map[Affinity]*serialLane, 3),
		sem:    semaphore.NewWeighted(int64(config.MaxParallelism)),
		active: make(map[string]*Task),
	}

	for _, aff := range []Affinity{Exclusive, ExclusiveNetwork, UIThread} {
		lane := newSerialLane(aff)
		s.lanes[aff] = lane
		s.workers.Add(1)
		go func() {
			defer s.workers.Done()
			lane.loop(s.run)
		}()
	}
	return s
}

// AddListener adds a lifecycle listener.
func (s *Scheduler) AddListener(l Listener) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	s.listeners = append(s.listeners, l)
}

// RemoveListener removes a lifecycle listener.
func (s *Scheduler) RemoveListener(l Listener) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	for i, existing := range s.listeners {
		if existing == l {
			s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
			return
		}
	}
}

// Submit schedules fn on the lane for aff and returns its task.
func (s *Scheduler) Submit(name string, aff Affinity, fn Func) (*Task, error) {
	if !aff.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownAffinity, int(aff))
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil, ErrStopped
	}
	t := newTask(s.ctx, uuid.NewString(), name, aff, fn)
	t.onFinish = s.finished
	s.active[t.ID] = t
	if s.idle == nil {
		s.idle = make(chan struct{})
	}
	if aff == Concurrent {
		s.workers.Add(1)
	}
	s.mu.Unlock()

	s.logger.Debug("task queued", "task", t.Name, "id", t.ID, "affinity", aff)

	if aff == Concurrent {
		go s.runConcurrent(t)
	} else {
		s.lanes[aff].push(t)
	}
	return t, nil
}

// Schedule submits a typed task.
func Schedule[T any](s *Scheduler, name string, aff Affinity, fn func(ctx context.Context) (T, error)) (Handle[T], error) {
	t, err := s.Submit(name, aff, func(ctx context.Context) (any, error) {
		return fn(ctx)
	})
	if err != nil {
		return Handle[T]{}, err
	}
	return Handle[T]{task: t}, nil
}

// Post runs fn on the UIThread lane.
func (s *Scheduler) Post(name string, fn func()) (*Task, error) {
	return s.Submit(name, UIThread, func(context.Context) (any, error) {
		fn()
		return nil, nil
	})
}

// Cancel requests cancellation of t.
func (s *Scheduler) Cancel(t *Task) {
	if t != nil {
		t.Cancel()
	}
}

// Pending returns the number of tasks that are not yet terminal.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// Queued returns the number of tasks waiting on the lane for aff.
func (s *Scheduler) Queued(aff Affinity) int {
	lane, ok := s.lanes[aff]
	if !ok {
		return 0
	}
	return lane.len()
}

// WaitIdle blocks until every submitted task is terminal or ctx ends. Tasks
// submitted while waiting are waited for as well.
func (s *Scheduler) WaitIdle(ctx context.Context) error {
	for {
		s.mu.Lock()
		idle := s.idle
		s.mu.Unlock()
		if idle == nil {
			return nil
		}
		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Stop rejects new tasks, cancels every outstanding task and waits for the
// lane workers to exit or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return s.waitWorkers(ctx)
	}
	s.stopped = true
	outstanding := make([]*Task, 0, len(s.active))
	for _, t := range s.active {
		outstanding = append(outstanding, t)
	}
	s.mu.Unlock()

	for _, t := range outstanding {
		t.Cancel()
	}
	s.cancel()
	for _, lane := range s.lanes {
		close(lane.quit)
	}
	return s.waitWorkers(ctx)
}

func (s *Scheduler) waitWorkers(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.workers.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) runConcurrent(t *Task) {
	defer s.workers.Done()
	if err := s.sem.Acquire(t.ctx, 1); err != nil {
		t.finish(StateCancelled, nil, t.cancelledErr(), true)
		return
	}
	defer s.sem.Release(1)
	s.run(t)
}

func (s *Scheduler) run(t *Task) {
	if !t.begin() {
		return
	}
	s.logger.Debug("task started", "task", t.Name, "id", t.ID, "affinity", t.Affinity)
	s.notify(func(l Listener) { l.TaskStarted(t) })

	value, err := s.invoke(t)
	t.complete(value, err)
}

func (s *Scheduler) invoke(t *Task) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("task panicked", "task", t.Name, "id", t.ID, "panic", r, "stack", string(debug.Stack()))
			value, err = nil, fmt.Errorf("%w: %s: %v", ErrPanic, t.Name, r)
		}
	}()
	return t.fn(t.ctx)
}

// finished runs once per task after its terminal state is recorded.
func (s *Scheduler) finished(t *Task) {
	state := t.State()
	if err := t.Err(); err != nil && state == StateFailed {
		s.logger.Debug("task failed", "task", t.Name, "id", t.ID, "error", err, "duration", t.Duration())
	} else {
		s.logger.Debug("task finished", "task", t.Name, "id", t.ID, "state", state, "duration", t.Duration())
	}
	s.notify(func(l Listener) { l.TaskFinished(t) })

	s.mu.Lock()
	delete(s.active, t.ID)
	if len(s.active) == 0 && s.idle != nil {
		close(s.idle)
		s.idle = nil
	}
	s.mu.Unlock()
}

func (s *Scheduler) notify(fn func(Listener)) {
	s.listenersMu.RLock()
	listeners := make([]Listener, len(s.listeners))
	copy(listeners, s.listeners)
	s.listenersMu.RUnlock()

	for _, l := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("task listener panicked", "panic", r)
				}
			}()
			fn(l)
		}()
	}
}
