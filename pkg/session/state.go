package session

// State is a session lifecycle state.
type State int32

const (
	// StateStopped is the initial and final state.
	StateStopped State = iota

	// StateStarting covers init, accept, connect and handshake.
	StateStarting

	// StateStarted means the session is connected and receiving.
	StateStarted

	// StateStopping is held while the disconnect path is entered.
	StateStopping
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "STOPPED"
	case StateStarting:
		return "STARTING"
	case StateStarted:
		return "STARTED"
	case StateStopping:
		return "STOPPING"
	default:
		return "UNKNOWN"
	}
}
