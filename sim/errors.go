package sim

import "errors"

var (
	// ErrPastScheduling is returned when an event is scheduled before the current time.
	ErrPastScheduling = errors.New("event scheduled in the past")
	// ErrNilAction is returned when an event without an action is scheduled.
	ErrNilAction = errors.New("event has no action")
	// ErrNilEvent is returned when a nil event is scheduled or cancelled.
	ErrNilEvent = errors.New("nil event")
	// ErrEventNotQueued is returned when cancelling an event that is not waiting in the queue.
	ErrEventNotQueued = errors.New("event is not queued")
	// ErrAlreadyQueued is returned when scheduling an event twice.
	ErrAlreadyQueued = errors.New("event already scheduled")
	// ErrDuplicateEntity is returned when two entities share a name on one timeline.
	ErrDuplicateEntity = errors.New("duplicate entity name")
)
