package valve

// State is the derived open/closed state of the valve
type State int

const (
	StateUnknown State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// stateFromFlag maps the device's reported flow flag onto a State
func stateFromFlag(open bool) State {
	if open {
		return StateOpen
	}
	return StateClosed
}
