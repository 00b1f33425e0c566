package app

import (
	"errors"
	"fmt"
)

// Host errors.
var (
	// ErrAlreadyRunning indicates Start was called twice.
	ErrAlreadyRunning = errors.New("host already running")

	// ErrNotRunning indicates an operation that needs a started host.
	ErrNotRunning = errors.New("host not running")

	// ErrShutDown indicates the host was shut down and cannot be reused.
	ErrShutDown = errors.New("host shut down")
)

// InitError reports a component that failed to initialize.
type InitError struct {
	Component string
	Err       error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("init %s: %v", e.Component, e.Err)
}

func (e *InitError) Unwrap() error {
	return e.Err
}
