package event

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

// Error types for subscriptions.
var (
	// ErrInvalidPattern indicates an empty or malformed topic pattern.
	ErrInvalidPattern = errors.New("invalid topic pattern")

	// ErrNilHandler indicates a subscription without a handler.
	ErrNilHandler = errors.New("nil handler")
)

// Subscriber receives events.
type Subscriber interface {
	HandleEvent(Event)
}

// HandlerFunc adapts a function to Subscriber.
type HandlerFunc func(Event)

// HandleEvent calls f.
func (f HandlerFunc) HandleEvent(e Event) {
	f(e)
}

// Subscription is a registered subscriber.
type Subscription struct {
	id      uint64
	pattern Topic
	sub     Subscriber
	active  atomic.Bool
}

// ID returns the subscription identifier.
func (s *Subscription) ID() uint64 {
	return s.id
}

// Pattern returns the subscribed topic pattern.
func (s *Subscription) Pattern() Topic {
	return s.pattern
}

// Active reports whether the subscription still receives events.
func (s *Subscription) Active() bool {
	return s.active.Load()
}

// Dispatcher delivers events synchronously to every subscriber whose
// pattern matches, in subscription order. A panicking subscriber is
// recovered and logged; the others still receive the event.
type Dispatcher struct {
	mu     sync.RWMutex
	subs   []*Subscription
	nextID uint64
	logger *slog.Logger

	published atomic.Uint64
	delivered atomic.Uint64
	panics    atomic.Uint64
}

// NewDispatcher creates a dispatcher. A nil logger discards.
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Dispatcher{logger: logger}
}

// Subscribe registers sub for topics matching pattern.
func (d *Dispatcher) Subscribe(pattern Topic, sub Subscriber) (*Subscription, error) {
	if !pattern.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPattern, pattern)
	}
	if sub == nil {
		return nil, ErrNilHandler
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	s := &Subscription{id: d.nextID, pattern: pattern, sub: sub}
	s.active.Store(true)
	d.subs = append(d.subs, s)
	return s, nil
}

// SubscribeFunc registers fn for topics matching pattern.
func (d *Dispatcher) SubscribeFunc(pattern Topic, fn func(Event)) (*Subscription, error) {
	if fn == nil {
		return nil, ErrNilHandler
	}
	return d.Subscribe(pattern, HandlerFunc(fn))
}

// SubscribeAll registers sub for every event.
func (d *Dispatcher) SubscribeAll(sub Subscriber) (*Subscription, error) {
	return d.Subscribe(WildcardMulti, sub)
}

// Unsubscribe removes s. It is safe to call more than once and from inside
// a handler.
func (d *Dispatcher) Unsubscribe(s *Subscription) {
	if s == nil || !s.active.Swap(false) {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, cur := range d.subs {
		if cur == s {
			d.subs = append(d.subs[:i:i], d.subs[i+1:]...)
			return
		}
	}
}

// Len returns the number of subscriptions.
func (d *Dispatcher) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subs)
}

// Publish delivers e and returns the number of subscribers reached.
func (d *Dispatcher) Publish(e Event) int {
	d.published.Add(1)
	d.mu.RLock()
	targets := make([]*Subscription, 0, len(d.subs))
	for _, s := range d.subs {
		if e.Topic.Matches(s.pattern) {
			targets = append(targets, s)
		}
	}
	d.mu.RUnlock()

	n := 0
	for _, s := range targets {
		if !s.Active() {
			continue
		}
		if d.deliver(s, e) {
			n++
		}
	}
	return n
}

func (d *Dispatcher) deliver(s *Subscription, e Event) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			d.panics.Add(1)
			d.logger.Error("subscriber panicked",
				"event", e.Kind.String(), "subscription", s.id, "panic", r, "stack", string(debug.Stack()))
			ok = false
		}
	}()
	s.sub.HandleEvent(e)
	d.delivered.Add(1)
	return true
}

// Stats reports delivery counters.
type Stats struct {
	Published uint64
	Delivered uint64
	Panics    uint64
}

// Stats returns the delivery counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Published: d.published.Load(),
		Delivered: d.delivered.Load(),
		Panics:    d.panics.Load(),
	}
}
