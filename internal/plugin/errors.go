package plugin

import (
	"errors"
	"fmt"
	"strings"
)

// Plugin manager errors.
var (
	// ErrPluginNotFound is returned when a plugin name is not registered.
	ErrPluginNotFound = errors.New("plugin not found")

	// ErrInvalidPlugin is returned when registering a nil plugin or one without a name.
	ErrInvalidPlugin = errors.New("invalid plugin")

	// ErrMissingRequiredDependency is returned when a required dependency is not active.
	ErrMissingRequiredDependency = errors.New("missing required dependency")

	// ErrDependencyVersionMismatch is returned when an active dependency does not
	// satisfy the declared version range.
	ErrDependencyVersionMismatch = errors.New("dependency version mismatch")

	// ErrPluginUnavailable is returned when a plugin reports it is not available.
	ErrPluginUnavailable = errors.New("plugin unavailable")

	// ErrActivationHookFailed is matched by a *HookError from OnActivate.
	ErrActivationHookFailed = errors.New("activation hook failed")

	// ErrDeactivationHookFailed is matched by a *HookError from OnDeactivate.
	ErrDeactivationHookFailed = errors.New("deactivation hook failed")

	// ErrHasActiveDependents is returned by Deactivate under DependentsRefuse.
	ErrHasActiveDependents = errors.New("plugin has active dependents")
)

// Phase names the lifecycle hook a HookError came from.
type Phase string

// Hook phases.
const (
	PhaseActivate   Phase = "activate"
	PhaseDeactivate Phase = "deactivate"
)

// HookError wraps a failure returned or raised by a lifecycle hook.
type HookError struct {
	// Plugin is the name of the plugin whose hook failed.
	Plugin string

	// Phase is the hook that failed.
	Phase Phase

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *HookError) Error() string {
	return fmt.Sprintf("plugin %q %s hook: %v", e.Plugin, e.Phase, e.Err)
}

// Unwrap returns the underlying error.
func (e *HookError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the hook's phase.
func (e *HookError) Is(target error) bool {
	switch e.Phase {
	case PhaseActivate:
		return target == ErrActivationHookFailed
	case PhaseDeactivate:
		return target == ErrDeactivationHookFailed
	}
	return false
}

// DependencyError lists the required dependencies that blocked activation.
type DependencyError struct {
	// Plugin is the plugin whose activation was refused.
	Plugin string

	// Missing names required dependencies that are not active.
	Missing []string

	// Mismatched describes active dependencies outside their version range.
	Mismatched []string
}

// Error implements the error interface.
func (e *DependencyError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing required dependencies: "+joinNames(e.Missing))
	}
	if len(e.Mismatched) > 0 {
		parts = append(parts, "unsatisfied dependency versions: "+joinNames(e.Mismatched))
	}
	return fmt.Sprintf("plugin %q: %s", e.Plugin, strings.Join(parts, "; "))
}

// Is matches ErrMissingRequiredDependency and ErrDependencyVersionMismatch.
func (e *DependencyError) Is(target error) bool {
	switch target {
	case ErrMissingRequiredDependency:
		return len(e.Missing) > 0
	case ErrDependencyVersionMismatch:
		return len(e.Mismatched) > 0
	}
	return false
}
