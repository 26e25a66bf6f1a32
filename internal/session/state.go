package session

// State is the lifecycle position of a session.
type State int

const (
	Idle State = iota
	Connecting
	Connected
	Closed
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Closed:
		return "closed"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Live reports whether the session holds, or is acquiring, a transport.
func (s State) Live() bool {
	return s == Connecting || s == Connected
}

// EventKind identifies what a background task is reporting.
type EventKind int

const (
	// ConnectResult is posted once by the connect task.
	ConnectResult EventKind = iota
	// ReadEnded is posted once by the read task.
	ReadEnded
)

func (k EventKind) String() string {
	switch k {
	case ConnectResult:
		return "connect-result"
	case ReadEnded:
		return "read-ended"
	default:
		return "unknown"
	}
}

// Event is a message from a session's background task to its owner.
// Err is nil for a successful connect and for a graceful end of stream.
type Event struct {
	Session *Session
	Kind    EventKind
	Err     error
}
