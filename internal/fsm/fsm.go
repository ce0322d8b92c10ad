// Package fsm is the per-session capture state machine.
package fsm

import "fmt"

type State string

type Event string

const (
	StateIdle      State = "idle"
	StateCapturing State = "capturing"
	StateStopping  State = "stopping"
	StateError     State = "error"
)

// Events. Abort discards a capture that never produced a stream. Dropped is
// raised when the device stream ends while still capturing, e.g. the source
// was unplugged or the audio server went away.
const (
	EventStart   Event = "start"
	EventStop    Event = "stop"
	EventAbort   Event = "abort"
	EventStopped Event = "stopped"
	EventDropped Event = "dropped"
	EventFail    Event = "fail"
	EventReset   Event = "reset"
)

// EventFail is accepted in every state and is not listed here.
var transitions = map[State]map[Event]State{
	StateIdle: {
		EventStart: StateCapturing,
	},
	StateCapturing: {
		EventStop:    StateStopping,
		EventAbort:   StateIdle,
		EventDropped: StateError,
	},
	StateStopping: {
		EventStopped: StateIdle,
	},
	StateError: {
		EventReset: StateIdle,
	},
}

// Transition returns the next state, or the current state and an error when
// event is not valid in current.
func Transition(current State, event Event) (State, error) {
	edges, ok := transitions[current]
	if !ok {
		return current, fmt.Errorf("unknown state %q", current)
	}
	if event == EventFail {
		return StateError, nil
	}
	next, ok := edges[event]
	if !ok {
		return current, fmt.Errorf("invalid transition: %s --(%s)--> ?", current, event)
	}
	return next, nil
}

