package transport

// Status is the connection manager's externally visible state.
type Status int

const (
	StatusIdle Status = iota
	StatusConnecting
	StatusConnected
	StatusDisconnected
	StatusAuthError
	StatusReconnectFailed
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusDisconnected:
		return "disconnected"
	case StatusAuthError:
		return "auth-error"
	case StatusReconnectFailed:
		return "reconnect-failed"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further automatic activity will occur. Auth
// rejection and reconnect exhaustion both require manual intervention.
func (s Status) Terminal() bool {
	return s == StatusAuthError || s == StatusReconnectFailed
}
