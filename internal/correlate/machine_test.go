package correlate

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func savePhases() []Phase {
	return []Phase{
		{Name: "ack", Pattern: regexp.MustCompile(`Saving the game \(this may take a moment!\)`)},
		{Name: "done", Pattern: regexp.MustCompile(`Saved the game`)},
	}
}

func line(text string) event {
	return event{kind: eventLineArrived, line: text}
}

func TestMachineTransitions(t *testing.T) {
	tests := []struct {
		name      string
		phases    []Phase
		events    []event
		wantState State
		wantPhase int
	}{
		{
			name:      "written moves to awaiting",
			phases:    savePhases(),
			events:    []event{{kind: eventWritten}},
			wantState: StateAwaiting,
		},
		{
			name:   "both phases match",
			phases: savePhases(),
			events: []event{
				{kind: eventWritten},
				line("[INFO] Saving the game (this may take a moment!)"),
				line("[INFO] Saved the game"),
			},
			wantState: StateMatched,
			wantPhase: 2,
		},
		{
			name:   "lines can match before the write is confirmed",
			phases: savePhases(),
			events: []event{
				line("[INFO] Saving the game (this may take a moment!)"),
			},
			wantState: StateAwaiting,
			wantPhase: 1,
		},
		{
			name:   "non matching lines do not advance",
			phases: savePhases(),
			events: []event{
				{kind: eventWritten},
				line("[INFO] Saved the game"),
				line("[INFO] Steve joined the game"),
			},
			wantState: StateAwaiting,
		},
		{
			name:   "timer in second phase",
			phases: savePhases(),
			events: []event{
				{kind: eventWritten},
				line("Saving the game (this may take a moment!)"),
				{kind: eventTimerFired},
			},
			wantState: StateTimedOut,
			wantPhase: 1,
		},
		{
			name:      "submit failure",
			phases:    savePhases(),
			events:    []event{{kind: eventSubmitFailed}},
			wantState: StateDispatchFailed,
		},
		{
			name:      "write failure",
			phases:    savePhases(),
			events:    []event{{kind: eventWriteFailed}},
			wantState: StateProcessUnavailable,
		},
		{
			name:      "stream closed",
			phases:    savePhases(),
			events:    []event{{kind: eventWritten}, {kind: eventStreamClosed}},
			wantState: StateProcessUnavailable,
		},
		{
			name:      "cancelled",
			phases:    savePhases(),
			events:    []event{{kind: eventCancelled}},
			wantState: StateCancelled,
		},
		{
			name:      "no phases match on write",
			events:    []event{{kind: eventWritten}},
			wantState: StateMatched,
		},
		{
			name:   "terminal states ignore later events",
			phases: savePhases(),
			events: []event{
				{kind: eventTimerFired},
				line("Saving the game (this may take a moment!)"),
				{kind: eventCancelled},
			},
			wantState: StateTimedOut,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newMachine(tt.phases)
			for _, ev := range tt.events {
				m.handle(ev)
			}
			assert.Equal(t, tt.wantState, m.state)
			assert.Equal(t, tt.wantPhase, m.phase)
		})
	}
}

func TestMachineCaptures(t *testing.T) {
	m := newMachine([]Phase{{
		Pattern: regexp.MustCompile(`There are (?P<online>\d+) of a max (?P<max>\d+) players online:(?P<players>.*)`),
	}})

	advanced := m.handle(line("[Server thread/INFO]: There are 1 of a max 20 players online: Steve (abc)"))
	require.True(t, advanced)
	assert.Equal(t, StateMatched, m.state)
	assert.Equal(t, map[string]string{
		"online":  "1",
		"max":     "20",
		"players": " Steve (abc)",
	}, m.captures)
	assert.Len(t, m.lines, 1)
}

func TestMachineOnlyCurrentPhaseMatches(t *testing.T) {
	m := newMachine(savePhases())
	m.handle(event{kind: eventWritten})

	// The completion line arriving first must not skip the acknowledgement.
	assert.False(t, m.handle(line("Saved the game")))
	assert.Equal(t, 0, m.phase)
	assert.True(t, m.handle(line("Saving the game (this may take a moment!)")))
	assert.True(t, m.handle(line("Saved the game")))
	assert.Equal(t, StateMatched, m.state)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "awaiting", StateAwaiting.String())
	assert.Equal(t, "timed_out", StateTimedOut.String())
	assert.Equal(t, "state(42)", State(42).String())
	assert.False(t, StateSent.Terminal())
	assert.True(t, StateCancelled.Terminal())
}
