package task

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScheduler(t *testing.T, parallelism int) *Scheduler {
	t.Helper()
	s := NewScheduler(Config{MaxParallelism: parallelism})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	})
	return s
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestSchedule_TypedResult(t *testing.T) {
	s := newTestScheduler(t, 2)

	h, err := Schedule(s, "answer", Concurrent, func(context.Context) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)

	v, err := h.Wait(waitCtx(t))
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, StateCompleted, h.State())
	assert.NotEmpty(t, h.ID())
}

func TestSchedule_Failure(t *testing.T) {
	s := newTestScheduler(t, 2)
	boom := errors.New("boom")

	h, err := Schedule(s, "fails", Exclusive, func(context.Context) (string, error) {
		return "", boom
	})
	require.NoError(t, err)

	_, err = h.Wait(waitCtx(t))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, StateFailed, h.State())
}

func TestSchedule_PanicFails(t *testing.T) {
	s := newTestScheduler(t, 2)

	h, err := Schedule(s, "panics", Concurrent, func(context.Context) (int, error) {
		panic("kaboom")
	})
	require.NoError(t, err)

	_, err = h.Wait(waitCtx(t))
	assert.ErrorIs(t, err, ErrPanic)
	assert.Contains(t, err.Error(), "kaboom")
	assert.Equal(t, StateFailed, h.State())

	// The lane keeps working after a panic.
	h2, err := Schedule(s, "after", Concurrent, func(context.Context) (int, error) { return 1, nil })
	require.NoError(t, err)
	v, err := h2.Wait(waitCtx(t))
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestExclusiveLane_Ordering(t *testing.T) {
	for _, aff := range []Affinity{Exclusive, ExclusiveNetwork, UIThread} {
		t.Run(aff.String(), func(t *testing.T) {
			s := newTestScheduler(t, 4)

			var mu sync.Mutex
			var events []string
			var running atomic.Int32
			var overlap atomic.Bool

			record := func(ev string) {
				mu.Lock()
				events = append(events, ev)
				mu.Unlock()
			}

			const n = 10
			for i := range n {
				_, err := s.Submit("t", aff, func(context.Context) (any, error) {
					if running.Add(1) > 1 {
						overlap.Store(true)
					}
					record("start")
					time.Sleep(2 * time.Millisecond)
					record("end")
					running.Add(-1)
					return i, nil
				})
				require.NoError(t, err)
			}
			require.NoError(t, s.WaitIdle(waitCtx(t)))

			assert.False(t, overlap.Load())
			require.Len(t, events, 2*n)
			for i := 0; i < len(events); i += 2 {
				assert.Equal(t, "start", events[i])
				assert.Equal(t, "end", events[i+1])
			}
		})
	}
}

func TestExclusiveLane_SubmissionOrder(t *testing.T) {
	s := newTestScheduler(t, 4)

	var mu sync.Mutex
	var order []int
	for i := range 20 {
		_, err := s.Submit("t", Exclusive, func(context.Context) (any, error) {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil, nil
		})
		require.NoError(t, err)
	}
	require.NoError(t, s.WaitIdle(waitCtx(t)))

	for i, v := range order {
		assert.Equal(t, i, v)
	}
}

func TestExclusiveLane_SecondWaitsForFirstTerminal(t *testing.T) {
	s := newTestScheduler(t, 4)

	release := make(chan struct{})
	first, err := s.Submit("first", Exclusive, func(context.Context) (any, error) {
		<-release
		return nil, errors.New("first failed")
	})
	require.NoError(t, err)

	var firstStateAtSecondStart State
	second, err := s.Submit("second", Exclusive, func(context.Context) (any, error) {
		firstStateAtSecondStart = first.State()
		return nil, nil
	})
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StateQueued, second.State())

	close(release)
	require.NoError(t, second.Wait(waitCtx(t)))
	assert.True(t, firstStateAtSecondStart.Terminal())
	assert.Equal(t, StateFailed, first.State())
}

func TestLanesAreIndependent(t *testing.T) {
	s := newTestScheduler(t, 4)

	block := make(chan struct{})
	defer close(block)
	_, err := s.Submit("blocked", Exclusive, func(context.Context) (any, error) {
		<-block
		return nil, nil
	})
	require.NoError(t, err)

	for _, aff := range []Affinity{ExclusiveNetwork, Concurrent, UIThread} {
		task, err := s.Submit("free", aff, func(context.Context) (any, error) { return nil, nil })
		require.NoError(t, err)
		require.NoError(t, task.Wait(waitCtx(t)), aff.String())
	}
}

func TestConcurrentLane_Bounded(t *testing.T) {
	const limit = 3
	s := newTestScheduler(t, limit)

	var running, peak atomic.Int32
	for range 12 {
		_, err := s.Submit("q", Concurrent, func(context.Context) (any, error) {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			running.Add(-1)
			return nil, nil
		})
		require.NoError(t, err)
	}
	require.NoError(t, s.WaitIdle(waitCtx(t)))

	assert.LessOrEqual(t, peak.Load(), int32(limit))
	assert.Greater(t, peak.Load(), int32(1))
}

func TestCancel_QueuedTaskNeverRuns(t *testing.T) {
	s := newTestScheduler(t, 4)

	block := make(chan struct{})
	_, err := s.Submit("blocker", Exclusive, func(context.Context) (any, error) {
		<-block
		return nil, nil
	})
	require.NoError(t, err)

	var ran atomic.Bool
	queued, err := s.Submit("queued", Exclusive, func(context.Context) (any, error) {
		ran.Store(true)
		return nil, nil
	})
	require.NoError(t, err)

	s.Cancel(queued)
	assert.Equal(t, StateCancelled, queued.State())
	err = queued.Wait(waitCtx(t))
	assert.ErrorIs(t, err, ErrCancelled)
	assert.ErrorIs(t, err, context.Canceled)

	close(block)
	require.NoError(t, s.WaitIdle(waitCtx(t)))
	assert.False(t, ran.Load())
}

func TestCancel_RunningTask(t *testing.T) {
	s := newTestScheduler(t, 4)

	started := make(chan struct{})
	h, err := Schedule(s, "long", Concurrent, func(ctx context.Context) (int, error) {
		close(started)
		<-ctx.Done()
		return 0, ctx.Err()
	})
	require.NoError(t, err)

	<-started
	h.Cancel()
	_, err = h.Wait(waitCtx(t))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateCancelled, h.State())
}

func TestCancel_RunningTaskThatSucceeds(t *testing.T) {
	s := newTestScheduler(t, 4)

	started := make(chan struct{})
	proceed := make(chan struct{})
	h, err := Schedule(s, "ignores", Exclusive, func(context.Context) (string, error) {
		close(started)
		<-proceed
		return "done", nil
	})
	require.NoError(t, err)

	<-started
	h.Cancel()
	close(proceed)
	v, err := h.Wait(waitCtx(t))
	require.NoError(t, err)
	assert.Equal(t, "done", v)
	assert.Equal(t, StateCompleted, h.State())
}

func TestWaitIdle_IncludesLateSubmissions(t *testing.T) {
	s := newTestScheduler(t, 4)

	var second atomic.Bool
	_, err := s.Submit("first", Exclusive, func(context.Context) (any, error) {
		_, err := s.Submit("second", Concurrent, func(context.Context) (any, error) {
			time.Sleep(10 * time.Millisecond)
			second.Store(true)
			return nil, nil
		})
		return nil, err
	})
	require.NoError(t, err)

	require.NoError(t, s.WaitIdle(waitCtx(t)))
	assert.True(t, second.Load())
	assert.Zero(t, s.Pending())
}

func TestWaitIdle_ContextExpires(t *testing.T) {
	s := newTestScheduler(t, 4)

	block := make(chan struct{})
	defer close(block)
	_, err := s.Submit("blocker", Exclusive, func(context.Context) (any, error) {
		<-block
		return nil, nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.WaitIdle(ctx), context.DeadlineExceeded)
}

func TestStop_CancelsEverything(t *testing.T) {
	s := NewScheduler(Config{MaxParallelism: 1})

	started := make(chan struct{})
	running, err := s.Submit("running", Exclusive, func(ctx context.Context) (any, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	require.NoError(t, err)
	queued, err := s.Submit("queued", Exclusive, func(context.Context) (any, error) { return nil, nil })
	require.NoError(t, err)
	<-started

	require.NoError(t, s.Stop(waitCtx(t)))
	assert.Equal(t, StateCancelled, running.State())
	assert.Equal(t, StateCancelled, queued.State())

	_, err = s.Submit("late", Concurrent, func(context.Context) (any, error) { return nil, nil })
	assert.ErrorIs(t, err, ErrStopped)
	require.NoError(t, s.Stop(waitCtx(t)))
}

func TestSubmit_UnknownAffinity(t *testing.T) {
	s := newTestScheduler(t, 1)
	_, err := s.Submit("bad", Affinity(99), func(context.Context) (any, error) { return nil, nil })
	assert.ErrorIs(t, err, ErrUnknownAffinity)
}

func TestPost_RunsInOrder(t *testing.T) {
	s := newTestScheduler(t, 4)

	var got []int
	for i := range 5 {
		_, err := s.Post("notify", func() { got = append(got, i) })
		require.NoError(t, err)
	}
	require.NoError(t, s.WaitIdle(waitCtx(t)))
	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
}

type recordingListener struct {
	mu       sync.Mutex
	started  []string
	finished []State
}

func (r *recordingListener) TaskStarted(t *Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, t.Name)
}

func (r *recordingListener) TaskFinished(t *Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = append(r.finished, t.State())
}

func TestListener(t *testing.T) {
	s := newTestScheduler(t, 1)
	l := &recordingListener{}
	s.AddListener(l)

	_, err := s.Submit("ok", Exclusive, func(context.Context) (any, error) { return nil, nil })
	require.NoError(t, err)
	_, err = s.Submit("bad", Exclusive, func(context.Context) (any, error) { return nil, errors.New("x") })
	require.NoError(t, err)
	require.NoError(t, s.WaitIdle(waitCtx(t)))

	l.mu.Lock()
	assert.Equal(t, []string{"ok", "bad"}, l.started)
	assert.Equal(t, []State{StateCompleted, StateFailed}, l.finished)
	l.mu.Unlock()

	s.RemoveListener(l)
	_, err = s.Submit("unseen", Exclusive, func(context.Context) (any, error) { return nil, nil })
	require.NoError(t, err)
	require.NoError(t, s.WaitIdle(waitCtx(t)))

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.Len(t, l.started, 2)
}

func TestHandle_WrongResultType(t *testing.T) {
	s := newTestScheduler(t, 1)
	task, err := s.Submit("str", Concurrent, func(context.Context) (any, error) { return "text", nil })
	require.NoError(t, err)

	h := Handle[int]{task: task}
	_, err = h.Wait(waitCtx(t))
	assert.Error(t, err)
}

func TestTask_Times(t *testing.T) {
	s := newTestScheduler(t, 1)
	task, err := s.Submit("timed", Exclusive, func(context.Context) (any, error) {
		time.Sleep(5 * time.Millisecond)
		return nil, nil
	})
	require.NoError(t, err)
	require.NoError(t, task.Wait(waitCtx(t)))

	queued, started, finished := task.Times()
	assert.False(t, queued.After(started))
	assert.False(t, started.After(finished))
	assert.GreaterOrEqual(t, task.Duration(), 5*time.Millisecond)
	assert.Contains(t, task.String(), "timed[exclusive completed]")
}

func TestState_Strings(t *testing.T) {
	assert.Equal(t, "queued", StateQueued.String())
	assert.Equal(t, "cancelled", StateCancelled.String())
	assert.False(t, StateRunning.Terminal())
	assert.True(t, StateFailed.Terminal())
	assert.Equal(t, "exclusive-network", ExclusiveNetwork.String())
	assert.Equal(t, "ui", UIThread.String())
}
