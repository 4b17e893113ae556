package stream

// State is the client's connection lifecycle state.
//
//	Idle → Connecting → Open → Reconnecting → Connecting → ... → Closed
//
// Closed is terminal, reached either by explicit Disconnect or by
// exhausting the reconnect budget.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateReconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
