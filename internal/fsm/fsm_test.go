package fsm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTransitionCaptureCycle(t *testing.T) {
	s := StateIdle

	next, err := Transition(s, EventStart)
	require.NoError(t, err)
	require.Equal(t, StateCapturing, next)

	next, err = Transition(next, EventStop)
	require.NoError(t, err)
	require.Equal(t, StateStopping, next)

	next, err = Transition(next, EventStopped)
	require.NoError(t, err)
	require.Equal(t, StateIdle, next)
}

func TestTransitionFailFromAnyStateGoesError(t *testing.T) {
	for _, state := range []State{StateIdle, StateCapturing, StateStopping, StateError} {
		next, err := Transition(state, EventFail)
		require.NoError(t, err)
		require.Equal(t, StateError, next)
	}
}

func TestTransitionMatrix(t *testing.T) {
	tests := []struct {
		name    string
		state   State
		event   Event
		want    State
		wantErr bool
	}{
		{name: "idle stop invalid", state: StateIdle, event: EventStop, want: StateIdle, wantErr: true},
		{name: "idle abort invalid", state: StateIdle, event: EventAbort, want: StateIdle, wantErr: true},
		{name: "capturing start invalid", state: StateCapturing, event: EventStart, want: StateCapturing, wantErr: true},
		{name: "capturing abort valid", state: StateCapturing, event: EventAbort, want: StateIdle},
		{name: "capturing dropped errors", state: StateCapturing, event: EventDropped, want: StateError},
		{name: "stopping dropped invalid", state: StateStopping, event: EventDropped, want: StateStopping, wantErr: true},
		{name: "idle dropped invalid", state: StateIdle, event: EventDropped, want: StateIdle, wantErr: true},
		{name: "capturing stopped invalid", state: StateCapturing, event: EventStopped, want: StateCapturing, wantErr: true},
		{name: "stopping stop invalid", state: StateStopping, event: EventStop, want: StateStopping, wantErr: true},
		{name: "stopping start invalid", state: StateStopping, event: EventStart, want: StateStopping, wantErr: true},
		{name: "error start invalid", state: StateError, event: EventStart, want: StateError, wantErr: true},
		{name: "error reset valid", state: StateError, event: EventReset, want: StateIdle},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			next, err := Transition(tc.state, tc.event)
			require.Equal(t, tc.want, next)
			if tc.wantErr {
				require.Error(t, err)
				require.Contains(t, err.Error(), "invalid transition")
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestTransitionUnknownState(t *testing.T) {
	next, err := Transition(State("mystery"), EventStart)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown state")
	require.Equal(t, State("mystery"), next)
}
