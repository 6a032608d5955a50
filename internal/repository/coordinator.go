package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dshills/gitstate/internal/cache"
	"github.com/dshills/gitstate/internal/event"
	"github.com/dshills/gitstate/internal/git"
	"github.com/dshills/gitstate/internal/task"
)

// ErrStopped is returned when using a stopped coordinator.
var ErrStopped = errors.New("coordinator stopped")

// Backend queries and mutates a repository. *git.Repository implements it.
type Backend interface {
	git.Querier
	Run(ctx context.Context, op git.Operation) (string, error)
}

var _ Backend = (*git.Repository)(nil)

// State is the coordinator's settle state.
type State int

const (
	// Idle means nothing is stale and no refresh is pending.
	Idle State = iota
	// Busy means an invalidation is settling or a refresh cycle is running.
	Busy
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Busy:
		return "busy"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Options configures a Coordinator.
type Options struct {
	// Settle is the quiet period after the last invalidation before a
	// refresh cycle starts. Zero means 25ms.
	Settle time.Duration

	// MaxSettle bounds how long a steady stream of invalidations can
	// postpone a cycle. Zero means 20 times Settle.
	MaxSettle time.Duration

	// SuppressWindow is how long after an operation ends a watcher batch
	// that started before the end is still attributed to it. It should
	// exceed the watcher debounce. Zero means 250ms.
	SuppressWindow time.Duration

	// MaxParallelism bounds concurrent refreshes when the coordinator owns
	// its scheduler.
	MaxParallelism int

	// Scheduler runs operations, refreshes and notifications. Nil means
	// the coordinator creates and owns one.
	Scheduler *task.Scheduler

	// Dispatcher receives notifications. Nil means a new one.
	Dispatcher *event.Dispatcher

	// Changes feeds file system changes. Nil disables watching.
	Changes ChangeSource

	// Recorder receives cycle and command reports. Nil discards them.
	Recorder Recorder

	// Graph is the dependency graph. Nil means cache.DefaultGraph.
	Graph *cache.Graph

	Logger *slog.Logger
}

// Coordinator keeps the cached view of one repository current.
//
// Invalidations from operations, file system changes and Refresh calls are
// merged into one settle window. When the window closes every due category
// is refreshed in parallel and subscribers are told about each category
// whose value actually changed, in category order, on the UIThread lane.
type Coordinator struct {
	backend  Backend
	store    *cache.Store
	sched    *task.Scheduler
	ownSched bool
	disp     *event.Dispatcher
	source   ChangeSource
	suppress *suppressor
	settle   *settleTimer
	recorder Recorder
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	state   State
	idle    chan struct{}
	started bool
	stopped bool
	armed   bool
	cycling bool
	rerun   bool
	cycle   uint64
	// pending are the categories invalidated since the last cycle began.
	// Entries nobody asked for stay unloaded.
	pending cache.Set

	wg sync.WaitGroup
}

// New creates a coordinator for backend. Nothing runs until Start, but
// operations can be submitted right away.
func New(backend Backend, opts Options) *Coordinator {
	if opts.Settle <= 0 {
		opts.Settle = 25 * time.Millisecond
	}
	if opts.MaxSettle <= 0 {
		opts.MaxSettle = 20 * opts.Settle
	}
	if opts.SuppressWindow <= 0 {
		opts.SuppressWindow = 250 * time.Millisecond
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	graph := opts.Graph
	if graph == nil {
		graph = cache.DefaultGraph()
	}

	c := &Coordinator{
		backend:  backend,
		store:    cache.NewStore(graph),
		sched:    opts.Scheduler,
		disp:     opts.Dispatcher,
		source:   opts.Changes,
		suppress: newSuppressor(graph, opts.SuppressWindow),
		recorder: opts.Recorder,
		logger:   logger,
		idle:     make(chan struct{}),
	}
	close(c.idle)
	if c.sched == nil {
		c.sched = task.NewScheduler(task.Config{
			MaxParallelism: opts.MaxParallelism,
			Logger:         logger,
		})
		c.ownSched = true
	}
	if c.disp == nil {
		c.disp = event.NewDispatcher(logger)
	}
	if c.recorder == nil {
		c.recorder = nopRecorder{}
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.settle = newSettleTimer(opts.Settle, opts.MaxSettle, c.onSettle)
	return c
}

// Start begins watching and loads every category once.
func (c *Coordinator) Start() error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return ErrStopped
	}
	if c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = true
	c.mu.Unlock()

	if c.source != nil {
		if err := c.source.Start(); err != nil {
			return fmt.Errorf("start watcher: %w", err)
		}
		c.wg.Add(1)
		go c.consume()
	}
	c.invalidate(cache.AllSet(), "start")
	return nil
}

// consume feeds watcher changes into the settle window, minus whatever a
// running operation will invalidate itself.
func (c *Coordinator) consume() {
	defer c.wg.Done()
	for ch := range c.source.Changes() {
		set := ch.Categories
		if ch.Overflow {
			set = cache.AllSet()
		}
		kept := c.suppress.filter(set, ch.Start)
		if dropped := set.Minus(kept); !dropped.Empty() {
			c.logger.Debug("watcher change suppressed", "categories", dropped.String())
		}
		c.invalidate(kept, "watcher")
	}
}

// Stop stops watching, cancels queued and running work and drops the cache.
func (c *Coordinator) Stop(ctx context.Context) error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	c.settle.Cancel()
	c.armed = false
	c.mu.Unlock()

	var errs []error
	if c.source != nil {
		if err := c.source.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close watcher: %w", err))
		}
	}
	c.cancel()
	if c.ownSched {
		if err := c.sched.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, ctx.Err())
	}

	c.mu.Lock()
	c.cycling = false
	c.idleLocked()
	c.mu.Unlock()
	c.store.Reset()
	return errors.Join(errs...)
}

// State returns the settle state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// WaitForEvents blocks until pending invalidations have settled and their
// notifications were delivered.
func (c *Coordinator) WaitForEvents(ctx context.Context) error {
	c.mu.Lock()
	idle := c.idle
	c.mu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Refresh marks cats and their dependents stale. With no arguments every
// category is refreshed.
func (c *Coordinator) Refresh(cats ...cache.Category) {
	set := cache.NewSet(cats...)
	if len(cats) == 0 {
		set = cache.AllSet()
	}
	c.invalidate(set, "refresh")
}

// Dispatcher returns the dispatcher notifications are published on.
func (c *Coordinator) Dispatcher() *event.Dispatcher {
	return c.disp
}

// Subscribe registers fn for events whose topic matches pattern.
func (c *Coordinator) Subscribe(pattern event.Topic, fn func(event.Event)) (*event.Subscription, error) {
	return c.disp.SubscribeFunc(pattern, fn)
}

// Scheduler returns the scheduler in use.
func (c *Coordinator) Scheduler() *task.Scheduler {
	return c.sched
}

// Get returns the cached value of cat and its version. Version 0 means it
// was never loaded.
func (c *Coordinator) Get(cat cache.Category) (any, uint64) {
	return c.store.Get(cat)
}

// Entry returns a view of the cache entry for cat.
func (c *Coordinator) Entry(cat cache.Category) cache.Entry {
	return c.store.Snapshot(cat)
}

// Snapshot returns a view of every cache entry in category order.
func (c *Coordinator) Snapshot() []cache.Entry {
	out := make([]cache.Entry, 0, len(cache.All()))
	for _, cat := range cache.All() {
		out = append(out, c.store.Snapshot(cat))
	}
	return out
}

// Status returns the cached status.
func (c *Coordinator) Status() (*git.Status, uint64) {
	v, version, _ := cache.Value[*git.Status](c.store, cache.Status)
	return v, version
}

// CurrentBranch returns the cached HEAD.
func (c *Coordinator) CurrentBranch() (git.Head, uint64) {
	v, version, _ := cache.Value[git.Head](c.store, cache.CurrentBranch)
	return v, version
}

// LocalBranches returns the cached local branches.
func (c *Coordinator) LocalBranches() ([]git.Branch, uint64) {
	v, version, _ := cache.Value[[]git.Branch](c.store, cache.LocalBranches)
	return v, version
}

// RemoteBranches returns the cached remote-tracking branches.
func (c *Coordinator) RemoteBranches() ([]git.Branch, uint64) {
	v, version, _ := cache.Value[[]git.Branch](c.store, cache.RemoteBranches)
	return v, version
}

// AheadBehind returns the cached upstream divergence of HEAD.
func (c *Coordinator) AheadBehind() (git.AheadBehind, uint64) {
	v, version, _ := cache.Value[git.AheadBehind](c.store, cache.AheadBehind)
	return v, version
}

// Log returns the cached history.
func (c *Coordinator) Log() ([]git.Commit, uint64) {
	v, version, _ := cache.Value[[]git.Commit](c.store, cache.Log)
	return v, version
}

// Locks returns the cached lock files.
func (c *Coordinator) Locks() ([]git.Lock, uint64) {
	v, version, _ := cache.Value[[]git.Lock](c.store, cache.Locks)
	return v, version
}

// Remotes returns the cached remotes.
func (c *Coordinator) Remotes() ([]git.Remote, uint64) {
	v, version, _ := cache.Value[[]git.Remote](c.store, cache.Remotes)
	return v, version
}
