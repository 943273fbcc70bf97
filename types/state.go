package types

// State is the bring-up state shared by the bus and panel controllers.
//
//	Unconfigured -> Configuring -> Ready
//	Configuring  -> Failed           (terminal)
//	any          -> Closed           (after Close)
type State uint8

const (
	StateUnconfigured State = iota
	StateConfiguring
	StateReady
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnconfigured:
		return "unconfigured"
	case StateConfiguring:
		return "configuring"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
