package lua

import "errors"

// Errors for Lua plugins.
var (
	// ErrStateClosed is returned when operating on a closed state.
	ErrStateClosed = errors.New("lua state is closed")

	// ErrExecutionTimeout is returned when a call exceeds its deadline.
	ErrExecutionTimeout = errors.New("lua execution timeout")

	// ErrMissingPluginTable is returned when a script defines no plugin table.
	ErrMissingPluginTable = errors.New("script does not define a plugin table")

	// ErrInvalidPluginTable is returned when the plugin table is malformed.
	ErrInvalidPluginTable = errors.New("invalid plugin table")

	// ErrNoBus is raised by runtime.publish before the plugin is registered.
	ErrNoBus = errors.New("no message bus attached")
)
