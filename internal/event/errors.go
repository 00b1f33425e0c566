package event

import (
	"errors"
	"fmt"
)

// Sentinel errors for the message bus.
var (
	// ErrInvalidType is returned when a message type is empty.
	ErrInvalidType = errors.New("invalid message type")

	// ErrNilHandler is returned when a nil handler is provided.
	ErrNilHandler = errors.New("handler cannot be nil")

	// ErrSubscriptionLimitExceeded is returned when the configured maximum
	// number of subscriptions is reached.
	ErrSubscriptionLimitExceeded = errors.New("subscription limit exceeded")

	// ErrHandlerTimeout is reported when a handler exceeds the handler timeout.
	ErrHandlerTimeout = errors.New("handler timeout exceeded")

	// ErrHandlerPanic is matched by *PanicError.
	ErrHandlerPanic = errors.New("handler panicked")

	// ErrSubscriberClosed is returned when subscribing through a closed Subscriber.
	ErrSubscriberClosed = errors.New("subscriber is closed")
)

// HandlerError wraps a handler failure with the subscription it came from.
type HandlerError struct {
	// SubscriptionID is the ID of the subscription whose handler failed.
	SubscriptionID string

	// Type is the message type the handler was subscribed to.
	Type string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *HandlerError) Error() string {
	return "handler error for subscription " + e.SubscriptionID + " on " + e.Type + ": " + e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *HandlerError) Unwrap() error {
	return e.Err
}

// PanicError wraps a panic value as an error.
type PanicError struct {
	// Value is the value passed to panic().
	Value any

	// Stack is the stack trace at the time of the panic.
	Stack string
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Is allows errors.Is to match PanicError with ErrHandlerPanic.
func (e *PanicError) Is(target error) bool {
	return target == ErrHandlerPanic
}
