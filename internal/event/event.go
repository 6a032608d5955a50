package event

import (
	"time"

	"github.com/google/uuid"
)

// Event tells subscribers that a cached value changed.
type Event struct {
	// ID is unique per event.
	ID string

	Kind  Kind
	Topic Topic

	// Value is the new cached value; its type depends on Kind.
	Value any

	// Version is the cache entry version that produced Value.
	Version uint64

	// Cycle is the settle cycle that emitted the event.
	Cycle uint64

	Timestamp time.Time
}

// New creates an event for kind.
func New(kind Kind, value any, version, cycle uint64) Event {
	return Event{
		ID:        uuid.NewString(),
		Kind:      kind,
		Topic:     kind.Topic(),
		Value:     value,
		Version:   version,
		Cycle:     cycle,
		Timestamp: time.Now(),
	}
}
