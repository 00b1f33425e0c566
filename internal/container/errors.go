package container

import (
	"errors"
	"strings"
)

// Container errors.
var (
	// ErrServiceNotRegistered is returned when resolving an unknown name.
	ErrServiceNotRegistered = errors.New("service not registered")

	// ErrCircularDependency is matched by *CircularDependencyError.
	ErrCircularDependency = errors.New("circular dependency")

	// ErrServiceTypeMismatch is returned by Get when the instance has the wrong type.
	ErrServiceTypeMismatch = errors.New("service type mismatch")

	// ErrNilFactory is returned when registering without a factory.
	ErrNilFactory = errors.New("factory cannot be nil")

	// ErrEmptyName is returned when registering under an empty name.
	ErrEmptyName = errors.New("service name cannot be empty")
)

// CircularDependencyError reports a construction cycle.
type CircularDependencyError struct {
	// Path is the chain of names being built, ending with the repeated name.
	Path []string
}

// Error implements the error interface.
func (e *CircularDependencyError) Error() string {
	return "circular dependency detected: " + strings.Join(e.Path, " -> ")
}

// Is allows errors.Is to match ErrCircularDependency.
func (e *CircularDependencyError) Is(target error) bool {
	return target == ErrCircularDependency
}
