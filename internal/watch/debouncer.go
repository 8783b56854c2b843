// Package watch turns filesystem notifications under a workspace root into
// settled batches of changed paths.
package watch

import (
	"context"
	"sync/atomic"
	"time"
)

// Op is the last thing observed happening to a path.
type Op int

const (
	OpCreate Op = iota
	OpWrite
	OpRemove
	OpRename
)

func (o Op) String() string {
	switch o {
	case OpCreate:
		return "create"
	case OpWrite:
		return "write"
	case OpRemove:
		return "remove"
	case OpRename:
		return "rename"
	default:
		return "unknown"
	}
}

// Event is one path and its latest operation. Path is a workspace key.
type Event struct {
	Path string
	Op   Op
}

// State is the debouncer's position in its cycle.
type State int32

const (
	// Idle: nothing pending.
	Idle State = iota
	// Collecting: events pending, waiting for the window to go quiet.
	Collecting
	// Flushing: handing a batch to the consumer.
	Flushing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Collecting:
		return "collecting"
	case Flushing:
		return "flushing"
	default:
		return "unknown"
	}
}

// Debouncer coalesces events per path until no new event has arrived for
// one window, then emits the pending set as a batch in first-seen order.
// The last operation for a path wins. All state lives in the Run goroutine.
type Debouncer struct {
	window time.Duration
	in     chan Event
	out    chan []Event
	state  atomic.Int32
}

// NewDebouncer returns a Debouncer with the given quiet window.
func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{
		window: window,
		in:     make(chan Event, 256),
		out:    make(chan []Event, 16),
	}
}

// Output receives settled batches. It is closed when Run returns.
func (d *Debouncer) Output() <-chan []Event {
	return d.out
}

// State reports the current state.
func (d *Debouncer) State() State {
	return State(d.state.Load())
}

// Add submits an event. It blocks only while the input queue is full.
func (d *Debouncer) Add(ctx context.Context, ev Event) error {
	select {
	case d.in <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run drives the state machine until ctx is done. Pending events that have
// not settled are dropped on shutdown.
func (d *Debouncer) Run(ctx context.Context) {
	defer close(d.out)

	var (
		pending = make(map[string]int)
		order   []Event
		timer   *time.Timer
		fire    <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			d.state.Store(int32(Idle))
			return

		case ev := <-d.in:
			if i, ok := pending[ev.Path]; ok {
				order[i].Op = ev.Op
			} else {
				pending[ev.Path] = len(order)
				order = append(order, ev)
			}
			if timer == nil {
				timer = time.NewTimer(d.window)
			} else {
				timer.Reset(d.window)
			}
			fire = timer.C
			d.state.Store(int32(Collecting))

		case <-fire:
			fire = nil
			d.state.Store(int32(Flushing))
			batch := order
			pending = make(map[string]int)
			order = nil
			select {
			case d.out <- batch:
			case <-ctx.Done():
				d.state.Store(int32(Idle))
				return
			}
			d.state.Store(int32(Idle))
		}
	}
}
