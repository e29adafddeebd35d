package transport

import "fmt"

// State is the lifecycle state of one connection instance
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateOpen
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// EventKind identifies a socket event delivered to the client
type EventKind int

const (
	EventOpen EventKind = iota
	EventError
	EventClose
	EventMessage
)

func (k EventKind) String() string {
	switch k {
	case EventOpen:
		return "open"
	case EventError:
		return "error"
	case EventClose:
		return "close"
	case EventMessage:
		return "message"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// DisconnectKind classifies a close event
type DisconnectKind int

const (
	// SafeDisconnect follows a locally requested Close and is not reported
	SafeDisconnect DisconnectKind = iota
	// UnexpectedDisconnect is a drop the client did not ask for
	UnexpectedDisconnect
)

func (k DisconnectKind) String() string {
	if k == SafeDisconnect {
		return "safe"
	}
	return "unexpected"
}

// Transition is the pure state function of the client. Open is the only event
// that makes a connection usable; Error and Close are terminal for the
// instance; messages never change state.
func Transition(s State, k EventKind) State {
	switch k {
	case EventOpen:
		return StateOpen
	case EventError, EventClose:
		return StateDisconnected
	default:
		return s
	}
}

// Classify decides how a close event is reported
func Classify(safeClose bool) DisconnectKind {
	if safeClose {
		return SafeDisconnect
	}
	return UnexpectedDisconnect
}
