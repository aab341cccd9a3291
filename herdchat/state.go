package herdchat

// ConnState represents the current state of the connection lifecycle.
type ConnState int

const (
	// StateClosed means no connection exists.
	StateClosed ConnState = iota

	// StateConnecting means a connection (or reconnection) is being established.
	StateConnecting

	// StateOpen means the connection is established and frames can be sent.
	StateOpen

	// StateClosing means an orderly shutdown is in progress.
	StateClosing

	// StateFailed means all reconnect attempts were exhausted; a fresh
	// Connect call is required to resume.
	StateFailed
)

// String returns the string representation of a ConnState.
func (s ConnState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// StateEvent describes a connection state transition. It is the payload of
// the connected and disconnected events.
type StateEvent struct {
	Old ConnState
	New ConnState
	Err error // cause of the transition, if any
}
