package repository

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/gitstate/internal/cache"
	"github.com/dshills/gitstate/internal/event"
	"github.com/dshills/gitstate/internal/git"
	"github.com/dshills/gitstate/internal/task"
)

// settleTimer fires once after calls stop arriving for delay. A steady
// stream of calls still fires after maxWait.
//
// Each Call bumps a sequence number; a timer callback whose sequence is no
// longer current does nothing.
type settleTimer struct {
	mu      sync.Mutex
	delay   time.Duration
	maxWait time.Duration
	timer   *time.Timer
	first   time.Time
	seq     uint64
	fire    func()
}

func newSettleTimer(delay, maxWait time.Duration, fire func()) *settleTimer {
	return &settleTimer{delay: delay, maxWait: maxWait, fire: fire}
}

// Call (re)starts the quiet period.
func (t *settleTimer) Call() {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	if t.first.IsZero() {
		t.first = now
	}
	wait := t.delay
	if t.maxWait > 0 {
		if remaining := t.maxWait - now.Sub(t.first); remaining < wait {
			wait = max(remaining, 0)
		}
	}

	t.seq++
	seq := t.seq
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(wait, func() {
		t.mu.Lock()
		if t.seq != seq {
			t.mu.Unlock()
			return
		}
		t.first = time.Time{}
		t.timer = nil
		t.mu.Unlock()
		t.fire()
	})
}

// Cancel drops a pending fire.
func (t *settleTimer) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seq++
	t.first = time.Time{}
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

// invalidate marks set and its closure stale and (re)starts the settle
// window. The coordinator is Busy when it returns.
func (c *Coordinator) invalidate(set cache.Set, source string) {
	if set.Empty() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	changed := c.store.Invalidate(set.Slice()...)
	c.pending = c.pending.Union(c.store.Graph().Closure(set))
	c.logger.Debug("invalidate", "source", source, "categories", set.String(), "changed", changed.String())

	if c.state == Idle {
		c.state = Busy
		c.idle = make(chan struct{})
	}
	c.armed = true
	c.settle.Call()
}

// onSettle runs when the settle window closes.
func (c *Coordinator) onSettle() {
	c.mu.Lock()
	c.armed = false
	if c.stopped {
		c.mu.Unlock()
		return
	}
	if c.cycling {
		c.rerun = true
		c.mu.Unlock()
		return
	}
	c.cycling = true
	c.cycle++
	n := c.cycle
	c.wg.Add(1)
	c.mu.Unlock()

	defer c.wg.Done()
	for {
		c.runCycle(n)

		c.mu.Lock()
		if c.rerun && !c.stopped {
			c.rerun = false
			c.cycle++
			n = c.cycle
			c.mu.Unlock()
			continue
		}
		c.rerun = false
		c.cycling = false
		c.idleLocked()
		c.mu.Unlock()
		return
	}
}

// idleLocked moves to Idle when nothing is armed or running.
func (c *Coordinator) idleLocked() {
	if c.state == Busy && !c.armed && !c.cycling {
		c.state = Idle
		close(c.idle)
	}
}

// runCycle refreshes every due category that was invalidated since the last
// cycle in parallel on the Concurrent lane and then notifies subscribers of
// the categories whose version moved.
func (c *Coordinator) runCycle(n uint64) {
	c.mu.Lock()
	want := c.pending
	c.pending = 0
	c.mu.Unlock()

	due := c.store.Due().Intersect(want)
	if due.Empty() {
		return
	}
	report := CycleReport{Cycle: n, Started: time.Now()}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	for _, cat := range due.Slice() {
		tok, ok := c.store.Begin(cat)
		if !ok {
			continue
		}
		if !git.HasQuery(cat) {
			c.store.Acknowledge(tok)
			continue
		}
		g.Go(func() error {
			v, err := c.query(cat)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				c.store.Abandon(tok)
				report.Failed = report.Failed.With(cat)
				c.logger.Warn("refresh failed", "category", cat.String(), "cycle", n, "error", err)
			case c.store.Set(tok, v):
				report.Refreshed = report.Refreshed.With(cat)
			default:
				report.Rejected = report.Rejected.With(cat)
				c.logger.Debug("refresh superseded", "category", cat.String(), "cycle", n)
			}
			return nil
		})
	}
	_ = g.Wait()

	var events []event.Event
	for _, cat := range report.Refreshed.Slice() {
		kind, ok := event.ForCategory(cat)
		if !ok {
			continue
		}
		e := c.store.Snapshot(cat)
		events = append(events, event.New(kind, e.Value, e.Version, n))
		report.Notified = append(report.Notified, kind)
	}
	c.publish(events)

	report.Finished = time.Now()
	c.logger.Debug("settle cycle",
		"cycle", n,
		"refreshed", report.Refreshed.String(),
		"rejected", report.Rejected.String(),
		"failed", report.Failed.String(),
		"duration", report.Finished.Sub(report.Started))
	c.recorder.RecordCycle(report)
}

func (c *Coordinator) query(cat cache.Category) (any, error) {
	h, err := task.Schedule(c.sched, "refresh "+cat.String(), task.Concurrent,
		func(ctx context.Context) (any, error) {
			return c.backend.Query(ctx, cat)
		})
	if err != nil {
		return nil, err
	}
	return h.Wait(c.ctx)
}

// publish delivers events on the UIThread lane and waits for delivery.
func (c *Coordinator) publish(events []event.Event) {
	if len(events) == 0 {
		return
	}
	t, err := c.sched.Post("notify", func() {
		for _, e := range events {
			c.disp.Publish(e)
		}
	})
	if err != nil {
		c.logger.Warn("notify dropped", "events", len(events), "error", err)
		return
	}
	_ = t.Wait(context.Background())
}
