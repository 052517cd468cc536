package client

import "github.com/cwrk-planet/relay-service/internal/wire"

// State of the connection manager's failover machine.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// Event is what the manager publishes on its event stream: either a status
// change or a decoded server envelope.
type Event interface{ isEvent() }

// StatusEvent reports a state transition.
type StatusEvent struct {
	State    State
	Endpoint string // endpoint the transition refers to, when any
	Session  wire.WelcomePayload
	Err      error // set for Exhausted and abnormal Disconnected
}

// ServerEvent carries one server envelope, verbatim.
type ServerEvent struct {
	Envelope wire.Envelope
}

func (StatusEvent) isEvent() {}
func (ServerEvent) isEvent() {}
