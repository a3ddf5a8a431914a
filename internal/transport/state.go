package transport

import "fmt"

// State is the connection state of a Session. A closed session stays in
// Disconnected for good; Alive tells it apart from a session that has not
// connected yet.
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}
