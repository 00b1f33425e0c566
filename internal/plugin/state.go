package plugin

// State represents the lifecycle state of a plugin name within a Manager.
type State int

// Plugin states.
const (
	// StateUnregistered - No plugin is registered under the name.
	StateUnregistered State = iota

	// StateRegistered - Registered but never activated.
	StateRegistered

	// StateActive - Activated and running.
	StateActive

	// StateInactive - Previously active, now deactivated.
	StateInactive
)

// String returns a string representation of the state.
func (s State) String() string {
	switch s {
	case StateUnregistered:
		return "unregistered"
	case StateRegistered:
		return "registered"
	case StateActive:
		return "active"
	case StateInactive:
		return "inactive"
	default:
		return "unknown"
	}
}

// IsKnown returns true if a plugin is registered under the name.
func (s State) IsKnown() bool {
	return s != StateUnregistered
}
