package sim

import (
	"fmt"
	"math"
)

// DefaultPriority is the priority assigned by NewEvent. It is the lowest
// priority, so an event created without one runs after every prioritized
// event that shares its timestamp.
const DefaultPriority int64 = math.MaxInt64

// Action is the deferred work carried by an Event.
// A non-nil error returned from Execute aborts the run that executed it.
type Action interface {
	Execute() error
}

// ActionFunc adapts a plain function to the Action interface.
type ActionFunc func() error

// Execute calls f.
func (f ActionFunc) Execute() error {
	return f()
}

// eventState tracks where an Event is in its lifecycle.
type eventState int

const (
	eventIdle eventState = iota
	eventQueued
	eventExecuted
	eventCancelled
	eventDiscarded
)

// Event is a scheduled (time, priority, action) triple.
// Time and priority are fixed at construction; ordering is
// time ascending, then priority ascending, then insertion order.
type Event struct {
	time     int64 // Simulation time of execution (in ticks)
	priority int64 // Lower value runs first among events at the same time
	action   Action

	seq   uint64 // Assigned by the Timeline on Schedule, FIFO tie-breaker
	index int    // Position in the heap while queued
	state eventState
}

// NewEvent creates an Event with DefaultPriority.
func NewEvent(time int64, action Action) *Event {
	return NewEventWithPriority(time, DefaultPriority, action)
}

// NewEventWithPriority creates an Event with an explicit tie-break priority.
func NewEventWithPriority(time, priority int64, action Action) *Event {
	return &Event{
		time:     time,
		priority: priority,
		action:   action,
		index:    -1,
	}
}

// Time returns the scheduled execution time of the event.
func (e *Event) Time() int64 { return e.time }

// Priority returns the tie-break priority of the event.
func (e *Event) Priority() int64 { return e.priority }

// Queued reports whether the event is waiting in a Timeline queue.
func (e *Event) Queued() bool { return e.state == eventQueued }

// Executed reports whether the event's action has been invoked.
func (e *Event) Executed() bool { return e.state == eventExecuted }

// Cancelled reports whether the event was withdrawn before execution.
func (e *Event) Cancelled() bool { return e.state == eventCancelled }

// before reports whether e runs before other.
func (e *Event) before(other *Event) bool {
	if e.time != other.time {
		return e.time < other.time
	}
	if e.priority != other.priority {
		return e.priority < other.priority
	}
	return e.seq < other.seq
}

func (e *Event) String() string {
	return fmt.Sprintf("Event: (time: %d, priority: %d, seq: %d)", e.time, e.priority, e.seq)
}
