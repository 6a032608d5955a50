package process

import (
	"context"
	"fmt"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Supervisor tracks running child processes so they can be terminated
// together on teardown. It is safe for concurrent use.
type Supervisor struct {
	mu        sync.RWMutex
	processes map[string]*Process
	wg        sync.WaitGroup

	closed atomic.Bool
	grace  time.Duration

	onExit func(p *Process)
}

// SupervisorOption configures a Supervisor.
type SupervisorOption func(*Supervisor)

// WithGrace sets how long Shutdown waits after SIGTERM before killing.
func WithGrace(d time.Duration) SupervisorOption {
	return func(s *Supervisor) {
		s.grace = d
	}
}

// WithProcessExitCallback sets a callback invoked when a process exits.
func WithProcessExitCallback(fn func(p *Process)) SupervisorOption {
	return func(s *Supervisor) {
		s.onExit = fn
	}
}

// NewSupervisor creates a supervisor. The default grace period is 2s.
func NewSupervisor(opts ...SupervisorOption) *Supervisor {
	s := &Supervisor{
		processes: make(map[string]*Process),
		grace:     2 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Grace returns the termination grace period.
func (s *Supervisor) Grace() time.Duration {
	return s.grace
}

// Start starts cmd and tracks it until it exits. The caller configures the
// command's standard streams.
func (s *Supervisor) Start(name string, cmd *exec.Cmd) (*Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() {
		return nil, ErrSupervisorShutdown
	}

	id := uuid.NewString()
	proc := NewProcess(id, name, cmd)
	if err := proc.start(); err != nil {
		return nil, err
	}
	s.processes[id] = proc

	s.wg.Add(1)
	go s.monitor(proc)
	return proc, nil
}

func (s *Supervisor) monitor(proc *Process) {
	defer s.wg.Done()
	<-proc.Done()

	if s.onExit != nil {
		func() {
			defer func() { _ = recover() }()
			s.onExit(proc)
		}()
	}

	s.mu.Lock()
	delete(s.processes, proc.ID)
	s.mu.Unlock()
}

// Get returns a process by ID, or nil.
func (s *Supervisor) Get(id string) *Process {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.processes[id]
}

// List returns all tracked processes.
func (s *Supervisor) List() []*Process {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Process, 0, len(s.processes))
	for _, p := range s.processes {
		out = append(out, p)
	}
	return out
}

// Count returns the number of tracked processes.
func (s *Supervisor) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.processes)
}

// Terminate stops the process with the given ID, killing it after the grace
// period.
func (s *Supervisor) Terminate(id string) error {
	proc := s.Get(id)
	if proc == nil {
		return fmt.Errorf("%w: %s", ErrProcessNotFound, id)
	}
	proc.Stop(s.grace)
	return nil
}

// IsShuttingDown reports whether Shutdown was called.
func (s *Supervisor) IsShuttingDown() bool {
	return s.closed.Load()
}

// Shutdown rejects new processes, terminates every tracked process and waits
// for them to exit. Processes still running after the grace period are
// killed. If ctx ends first the remaining processes are killed at once and
// ctx.Err() is returned.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed.Store(true)
	s.mu.Unlock()

	for _, p := range s.List() {
		p.Stop(s.grace)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		for _, p := range s.List() {
			_ = p.Kill()
		}
		<-done
		return ctx.Err()
	}
}
