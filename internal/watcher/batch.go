package watcher

import (
	"sync"
	"time"
)

// Batch is a burst of events that arrived without a quiet gap of the
// debounce delay. Each path appears once with its operations merged.
type Batch struct {
	Events []Event

	// Overflow is set when events were lost inside the window.
	Overflow bool

	Start time.Time
	End   time.Time
}

// Len returns the number of distinct paths in the batch.
func (b Batch) Len() int {
	return len(b.Events)
}

// Paths returns the changed paths in first-seen order.
func (b Batch) Paths() []string {
	out := make([]string, len(b.Events))
	for i, e := range b.Events {
		out[i] = e.Path
	}
	return out
}

// Batcher coalesces events into batches. A batch is emitted once no event
// arrived for the debounce delay, or when the oldest pending event is maxWait
// old, whichever comes first. Batches are delivered in order.
type Batcher struct {
	delay   time.Duration
	maxWait time.Duration

	mu       sync.Mutex
	index    map[string]int
	events   []Event
	overflow bool
	first    time.Time
	timer    *time.Timer
	closed   bool

	// sendMu keeps batches in extraction order.
	sendMu  sync.Mutex
	out     chan Batch
	closeCh chan struct{}
}

// NewBatcher creates a batcher. delay defaults to 100ms and maxWait to ten
// times delay.
func NewBatcher(delay, maxWait time.Duration) *Batcher {
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}
	if maxWait < delay {
		maxWait = 10 * delay
	}
	return &Batcher{
		delay:   delay,
		maxWait: maxWait,
		index:   make(map[string]int),
		out:     make(chan Batch, 64),
		closeCh: make(chan struct{}),
	}
}

// Delay returns the debounce delay.
func (b *Batcher) Delay() time.Duration {
	return b.delay
}

// Batches returns the channel of completed batches. It is closed by Close.
func (b *Batcher) Batches() <-chan Batch {
	return b.out
}

// Add records an event. A rename is recorded as a remove of the old path;
// the new path arrives as its own create.
func (b *Batcher) Add(e Event) {
	if e.Op.Has(OpRename) {
		e.Op = e.Op&^OpRename | OpRemove
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	if i, ok := b.index[e.Path]; ok {
		b.events[i].Op |= e.Op
		b.events[i].Timestamp = e.Timestamp
	} else {
		b.index[e.Path] = len(b.events)
		b.events = append(b.events, e)
	}
	b.schedule()
}

// MarkOverflow flags the current window as lossy.
func (b *Batcher) MarkOverflow() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.overflow = true
	b.schedule()
}

// Pending returns the number of paths waiting in the current window.
func (b *Batcher) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

// Flush emits the pending window immediately.
func (b *Batcher) Flush() {
	b.mu.Lock()
	if b.timer != nil {
		b.timer.Stop()
	}
	b.mu.Unlock()
	b.fire()
}

// Close drops pending events and closes the batch channel.
func (b *Batcher) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	if b.timer != nil {
		b.timer.Stop()
	}
	b.resetLocked()
	close(b.closeCh)
	b.mu.Unlock()

	b.sendMu.Lock()
	close(b.out)
	b.sendMu.Unlock()
}

// schedule arms the timer for the current window. Callers hold mu.
func (b *Batcher) schedule() {
	now := time.Now()
	if b.first.IsZero() {
		b.first = now
	}
	wait := b.delay
	if remaining := b.maxWait - now.Sub(b.first); remaining < wait {
		wait = max(remaining, 0)
	}
	if b.timer == nil {
		b.timer = time.AfterFunc(wait, b.fire)
		return
	}
	b.timer.Reset(wait)
}

func (b *Batcher) fire() {
	b.sendMu.Lock()
	defer b.sendMu.Unlock()

	b.mu.Lock()
	if b.closed || (len(b.events) == 0 && !b.overflow) {
		b.mu.Unlock()
		return
	}
	batch := Batch{
		Events:   b.events,
		Overflow: b.overflow,
		Start:    b.first,
		End:      time.Now(),
	}
	b.resetLocked()
	b.mu.Unlock()

	select {
	case b.out <- batch:
	case <-b.closeCh:
	}
}

func (b *Batcher) resetLocked() {
	b.events = nil
	b.index = make(map[string]int)
	b.overflow = false
	b.first = time.Time{}
}
