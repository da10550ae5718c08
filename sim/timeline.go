package sim

import (
	"container/heap"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
)

// Infinity is the stop time of a timeline that runs until its queue drains.
const Infinity int64 = math.MaxInt64

// Entity is a named simulation object owned by a Timeline.
// Init is called once, in registration order, before time zero.
type Entity interface {
	Name() string
	Init() error
}

// Timeline owns the event queue of one simulation process and advances
// virtual time strictly forward. It is not safe for concurrent use: a single
// goroutine drives it and every action runs to completion before the next
// event is popped.
type Timeline struct {
	now      int64
	stopTime int64
	queue    eventQueue
	nextSeq  uint64
	executed uint64

	entities    map[string]Entity
	entityOrder []string

	hasRun bool
}

// NewTimeline creates a Timeline that stops once the next event is later than stopTime.
// Use Infinity to run until the queue drains.
func NewTimeline(stopTime int64) *Timeline {
	return &Timeline{
		stopTime: stopTime,
		queue:    make(eventQueue, 0),
		entities: make(map[string]Entity),
	}
}

// Now returns the current simulation time.
func (tl *Timeline) Now() int64 { return tl.now }

// StopTime returns the last time at which events are still executed.
func (tl *Timeline) StopTime() int64 { return tl.stopTime }

// Len returns the number of queued events.
func (tl *Timeline) Len() int { return len(tl.queue) }

// Executed returns the number of actions run so far.
func (tl *Timeline) Executed() uint64 { return tl.executed }

// NextEventTime returns the time of the next queued event, or Infinity if the queue is empty.
func (tl *Timeline) NextEventTime() int64 {
	if ev := tl.queue.peek(); ev != nil {
		return ev.time
	}
	return Infinity
}

// Schedule inserts ev into the queue.
// Events at the current time are allowed; events before it are rejected with ErrPastScheduling.
func (tl *Timeline) Schedule(ev *Event) error {
	if ev == nil {
		return ErrNilEvent
	}
	if isNilAction(ev.action) {
		return fmt.Errorf("schedule at %d: %w", ev.time, ErrNilAction)
	}
	if ev.state == eventQueued {
		return fmt.Errorf("schedule at %d: %w", ev.time, ErrAlreadyQueued)
	}
	if ev.time < tl.now {
		return fmt.Errorf("schedule at %d with now=%d: %w", ev.time, tl.now, ErrPastScheduling)
	}
	tl.nextSeq++
	ev.seq = tl.nextSeq
	ev.state = eventQueued
	heap.Push(&tl.queue, ev)
	return nil
}

// isNilAction reports whether a is nil or wraps a nil function.
func isNilAction(a Action) bool {
	if a == nil {
		return true
	}
	f, ok := a.(ActionFunc)
	return ok && f == nil
}

// ScheduleAfter schedules action at now+delay with DefaultPriority and returns the event
// so that it can later be cancelled.
func (tl *Timeline) ScheduleAfter(delay int64, action Action) (*Event, error) {
	ev := NewEvent(tl.now+delay, action)
	if err := tl.Schedule(ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// Cancel removes a queued event before it executes.
// Cancelling an executed, discarded or already cancelled event returns ErrEventNotQueued.
func (tl *Timeline) Cancel(ev *Event) error {
	if ev == nil {
		return ErrNilEvent
	}
	if ev.state != eventQueued || ev.index < 0 || ev.index >= len(tl.queue) || tl.queue[ev.index] != ev {
		return ErrEventNotQueued
	}
	heap.Remove(&tl.queue, ev.index)
	ev.state = eventCancelled
	return nil
}

// AddEntity registers a named entity. Names must be unique per timeline.
func (tl *Timeline) AddEntity(e Entity) error {
	name := e.Name()
	if _, exists := tl.entities[name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateEntity, name)
	}
	tl.entities[name] = e
	tl.entityOrder = append(tl.entityOrder, name)
	return nil
}

// Entity returns the entity registered under name, or nil.
func (tl *Timeline) Entity(name string) Entity {
	return tl.entities[name]
}

// Init initializes every registered entity in registration order.
func (tl *Timeline) Init() error {
	for _, name := range tl.entityOrder {
		if err := tl.entities[name].Init(); err != nil {
			return fmt.Errorf("init entity %q: %w", name, err)
		}
	}
	return nil
}

// RunUntil executes, in order, every queued event whose time is earlier than end
// and not later than the stop time. It returns the number of executed events.
// Events scheduled by actions are eligible in the same call.
func (tl *Timeline) RunUntil(end int64) (int, error) {
	n := 0
	for {
		ev := tl.queue.peek()
		if ev == nil || ev.time >= end || ev.time > tl.stopTime {
			return n, nil
		}
		if err := tl.step(); err != nil {
			return n, err
		}
		n++
	}
}

// Run executes events until the queue drains or the next event is past the stop time.
// Events left in the queue at that point are discarded unexecuted.
// Panics if called more than once.
func (tl *Timeline) Run() error {
	if tl.hasRun {
		panic("Timeline.Run() called more than once")
	}
	tl.hasRun = true

	logrus.Infof("[tick %012d] Timeline started with %d queued events", tl.now, len(tl.queue))
	for {
		ev := tl.queue.peek()
		if ev == nil || ev.time > tl.stopTime {
			break
		}
		if err := tl.step(); err != nil {
			return err
		}
	}
	if n := tl.Discard(); n > 0 {
		logrus.Debugf("[tick %012d] Discarded %d events past stop time %d", tl.now, n, tl.stopTime)
	}
	logrus.Infof("[tick %012d] Timeline ended after %d events", tl.now, tl.executed)
	return nil
}

// Discard drops every queued event without executing it and returns how many were dropped.
func (tl *Timeline) Discard() int {
	n := len(tl.queue)
	for _, ev := range tl.queue {
		ev.state = eventDiscarded
		ev.index = -1
	}
	tl.queue = tl.queue[:0]
	return n
}

// step pops the next event, advances the clock and runs its action.
func (tl *Timeline) step() error {
	ev := heap.Pop(&tl.queue).(*Event)
	tl.now = ev.time
	ev.state = eventExecuted
	tl.executed++
	logrus.Tracef("[tick %012d] Executing %T (priority %d)", tl.now, ev.action, ev.priority)
	if err := ev.action.Execute(); err != nil {
		return fmt.Errorf("event at %d: %w", ev.time, err)
	}
	return nil
}
