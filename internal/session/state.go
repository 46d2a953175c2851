// internal/session/state.go
package session

// State is the lifecycle phase of one supervised link.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateEnumerating
	StatePolling
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateEnumerating:
		return "enumerating"
	case StatePolling:
		return "polling"
	case StateReconnecting:
		return "reconnecting"
	}
	return "unknown"
}
