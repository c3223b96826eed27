package peer

// State is the negotiation state of one peer link.
type State int

const (
	StateIdle State = iota
	StateLocalOffering
	StateRemoteOffered
	StateConnected
	StateFailed
	StateRestarting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLocalOffering:
		return "local-offering"
	case StateRemoteOffered:
		return "remote-offered"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	case StateRestarting:
		return "restarting"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}
