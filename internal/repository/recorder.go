package repository

import (
	"time"

	"github.com/dshills/gitstate/internal/cache"
	"github.com/dshills/gitstate/internal/event"
	"github.com/dshills/gitstate/internal/git"
)

// CycleReport summarizes one settle cycle.
type CycleReport struct {
	Cycle    uint64
	Started  time.Time
	Finished time.Time

	// Refreshed holds the categories whose new value was stored.
	Refreshed cache.Set

	// Rejected holds the categories whose result was dropped because they
	// were invalidated again while refreshing.
	Rejected cache.Set

	// Failed holds the categories whose query failed.
	Failed cache.Set

	// Notified lists the events emitted, in emission order.
	Notified []event.Kind
}

// CommandReport summarizes one mutating operation.
type CommandReport struct {
	ID        string
	Operation git.OpKind
	Target    string
	Started   time.Time
	Duration  time.Duration

	// Err is nil on success.
	Err error

	// Invalidated is the operation's invalidation set, empty on failure.
	Invalidated cache.Set
}

// Recorder receives reports from the coordinator. Calls come from the
// goroutines doing the work and must not block for long.
type Recorder interface {
	RecordCycle(CycleReport)
	RecordCommand(CommandReport)
}

type nopRecorder struct{}

func (nopRecorder) RecordCycle(CycleReport)     {}
func (nopRecorder) RecordCommand(CommandReport) {}
