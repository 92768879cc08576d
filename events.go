package sistema

import "time"

// EventName identifies one of the fixed lifecycle events a Context can
// notify listeners about. There is no open-ended registration surface —
// the set is closed, matching the base spec's "model events as a fixed
// enum" design note.
type EventName int

const (
	SuccessRun EventName = iota
	FailRun
	SuccessShutdown
	FailShutdown
	SuccessReset
	FailReset
)

func (e EventName) String() string {
	switch e {
	case SuccessRun:
		return "SUCCESS_RUN"
	case FailRun:
		return "FAIL_RUN"
	case SuccessShutdown:
		return "SUCCESS_SHUTDOWN"
	case FailShutdown:
		return "FAIL_SHUTDOWN"
	case SuccessReset:
		return "SUCCESS_RESET"
	case FailReset:
		return "FAIL_RESET"
	default:
		return "UNKNOWN_EVENT"
	}
}

// Event is the payload handed to every registered handler, matching
// the base spec's {dependency, context, timeStart, timeEnd,
// executionId, error} shape.
type Event struct {
	Dependency  *Node
	Context     *Context
	TimeStart   time.Time
	TimeEnd     time.Time
	ExecutionID string
	Err         error
}

// EventHandler is a caller-supplied callback for one EventName. A
// handler that panics is recovered and discarded silently — see
// Context.emit.
type EventHandler func(Event)

// Timing is one entry in a run's Meta timings sequence.
type Timing struct {
	Node      *Node
	Context   *Context
	TimeStart time.Time
	TimeEnd   time.Time
	Err       error
}
