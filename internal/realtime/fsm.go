package realtime

import (
	"time"

	"github.com/gosuda/boardsync/internal/backoff"
	"github.com/gosuda/boardsync/internal/protocol"
)

// State is the externally visible phase of the connection lifecycle.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
)

// Verdict is the outcome of a close or error transition: the state that
// was entered, whether a retry should be scheduled, and after how long.
type Verdict struct {
	State State
	Retry bool
	Delay time.Duration
}

// Machine is the connection state machine, free of sockets and timers so
// every transition can be exercised without a network. The Manager drives
// it under its own lock; Machine is not safe for concurrent use.
//
// A session runs from Connect until Reset or a fatal close. The first
// dial of a session reports StateConnecting; every retry after a
// disruption reports StateReconnecting, never StateConnecting again.
type Machine struct {
	state    State
	attempts int
	policy   backoff.Policy
}

// NewMachine returns a Machine in StateDisconnected.
func NewMachine(policy backoff.Policy) *Machine {
	return &Machine{state: StateDisconnected, policy: policy}
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// Connect begins a fresh session: the retry counter resets and the state
// becomes StateConnecting.
func (m *Machine) Connect() State {
	m.state = StateConnecting
	m.attempts = 0
	return m.state
}

// HandleOpen records a successful socket open. The retry counter resets
// so the next disruption backs off from the base delay again.
func (m *Machine) HandleOpen() State {
	m.state = StateConnected
	m.attempts = 0
	return m.state
}

// HandleClose classifies a socket close. Fatal application codes end the
// session with no retry; any other code is a transient disruption.
func (m *Machine) HandleClose(code int) Verdict {
	if protocol.FatalCloseCode(code) {
		m.state = StateDisconnected
		m.attempts = 0
		return Verdict{State: m.state}
	}
	return m.disrupted()
}

// HandleError classifies a dial or read failure that carried no close
// code. Always transient.
func (m *Machine) HandleError() Verdict {
	return m.disrupted()
}

// HandleMessage decodes one raw frame. Frames never change connection
// state, so this is stateless and safe to call without synchronization;
// on error the caller drops the frame and carries on.
func (m *Machine) HandleMessage(raw []byte) (protocol.ServerMessage, error) {
	return protocol.DecodeServer(raw)
}

// Reset returns to StateDisconnected without scheduling anything.
func (m *Machine) Reset() State {
	m.state = StateDisconnected
	m.attempts = 0
	return m.state
}

func (m *Machine) disrupted() Verdict {
	delay := m.policy.Delay(m.attempts)
	m.attempts++
	m.state = StateReconnecting
	return Verdict{State: m.state, Retry: true, Delay: delay}
}
