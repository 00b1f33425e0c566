package event

import "context"

// Priority determines handler execution order.
// Higher values execute first.
type Priority int

const (
	// PriorityLow is for metrics and logging handlers that run last.
	PriorityLow Priority = -100

	// PriorityNormal is the default priority.
	PriorityNormal Priority = 0

	// PriorityHigh is for handlers other handlers depend on.
	PriorityHigh Priority = 100

	// PriorityCritical is for host handlers that must run first.
	PriorityCritical Priority = 200
)

// String returns a human-readable priority name.
func (p Priority) String() string {
	switch {
	case p >= PriorityCritical:
		return "critical"
	case p >= PriorityHigh:
		return "high"
	case p >= PriorityNormal:
		return "normal"
	default:
		return "low"
	}
}

// Handler is the interface for message handlers.
type Handler interface {
	// Handle processes a message. A returned error is routed to the
	// subscription's ErrorHandler and never reaches the publisher.
	Handle(ctx context.Context, msg Message) error
}

// HandlerFunc is a function adapter for Handler.
type HandlerFunc func(ctx context.Context, msg Message) error

// Handle implements the Handler interface.
func (f HandlerFunc) Handle(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// FilterFunc is a predicate for filtering messages.
// Return true to deliver the message, false to skip the subscription.
type FilterFunc func(msg Message) bool

// ErrorHandler receives a subscription's handler failures.
type ErrorHandler func(err error, msg Message)

// Stats contains message bus statistics.
type Stats struct {
	// MessagesPublished is the total number of messages published.
	MessagesPublished uint64

	// MessagesDelivered is the number of handler invocations that succeeded.
	MessagesDelivered uint64

	// HandlersExecuted is the total number of handler invocations.
	HandlersExecuted uint64

	// HandlerErrors is the number of handlers that returned errors.
	HandlerErrors uint64

	// HandlerPanics is the number of handlers that panicked.
	HandlerPanics uint64

	// HandlerTimeouts is the number of handlers that exceeded the timeout.
	HandlerTimeouts uint64

	// FilterPanics is the number of filters that panicked.
	FilterPanics uint64

	// ActiveSubscriptions is the current number of subscriptions.
	ActiveSubscriptions int
}
