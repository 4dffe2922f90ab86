package models

// ConnectionState is the lifecycle state of a transport session.
type ConnectionState int

const (
	StateIdle ConnectionState = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateDisconnected
	StateFailed
)

func (s ConnectionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateDisconnected:
		return "disconnected"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions will happen for the handle.
func (s ConnectionState) Terminal() bool {
	return s == StateDisconnected || s == StateFailed
}

// MarshalText renders the state by name.
func (s ConnectionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
