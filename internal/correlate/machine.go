package correlate

import "fmt"

// State is a correlation state.
type State int

const (
	// StateSent means the command is queued but its write is unconfirmed.
	// Lines are still matched against the first phase in this state.
	StateSent State = iota
	// StateAwaiting means the command was written and phase machine.phase is pending.
	StateAwaiting
	StateMatched
	StateTimedOut
	StateDispatchFailed
	StateProcessUnavailable
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateSent:
		return "sent"
	case StateAwaiting:
		return "awaiting"
	case StateMatched:
		return "matched"
	case StateTimedOut:
		return "timed_out"
	case StateDispatchFailed:
		return "dispatch_failed"
	case StateProcessUnavailable:
		return "process_unavailable"
	case StateCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further event changes the state.
func (s State) Terminal() bool {
	return s >= StateMatched
}

type eventKind int

const (
	eventWritten eventKind = iota
	eventWriteFailed
	eventLineArrived
	eventTimerFired
	eventSubmitFailed
	eventStreamClosed
	eventCancelled
)

type event struct {
	kind eventKind
	line string
}

// machine is the pure correlation state machine. It is driven by Execute and
// owns no goroutines or timers.
type machine struct {
	phases   []Phase
	state    State
	phase    int
	captures map[string]string
	lines    []string
}

func newMachine(phases []Phase) *machine {
	return &machine{
		phases:   phases,
		state:    StateSent,
		captures: make(map[string]string),
	}
}

// handle applies ev and reports whether the current phase advanced.
func (m *machine) handle(ev event) bool {
	if m.state.Terminal() {
		return false
	}

	switch ev.kind {
	case eventWritten:
		if len(m.phases) == 0 {
			m.state = StateMatched
		} else if m.state == StateSent {
			m.state = StateAwaiting
		}
	case eventWriteFailed, eventStreamClosed:
		m.state = StateProcessUnavailable
	case eventSubmitFailed:
		m.state = StateDispatchFailed
	case eventTimerFired:
		m.state = StateTimedOut
	case eventCancelled:
		m.state = StateCancelled
	case eventLineArrived:
		return m.matchLine(ev.line)
	}
	return false
}

func (m *machine) matchLine(line string) bool {
	if m.phase >= len(m.phases) {
		return false
	}
	p := m.phases[m.phase]
	match := p.Pattern.FindStringSubmatch(line)
	if match == nil {
		return false
	}

	for i, name := range p.Pattern.SubexpNames() {
		if i > 0 && name != "" && i < len(match) {
			m.captures[name] = match[i]
		}
	}
	m.lines = append(m.lines, line)
	m.phase++

	if m.phase == len(m.phases) {
		m.state = StateMatched
	} else {
		m.state = StateAwaiting
	}
	return true
}
