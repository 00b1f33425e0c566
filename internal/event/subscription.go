package event

import "sync/atomic"

// SubscriptionConfig contains configuration for a subscription.
type SubscriptionConfig struct {
	// Priority determines execution order (higher values execute first).
	Priority Priority

	// Filter is an optional predicate. Messages are delivered only if it
	// returns true.
	Filter FilterFunc

	// ErrorHandler receives this subscription's handler failures.
	// When nil, failures are logged by the bus.
	ErrorHandler ErrorHandler

	// Once removes the subscription after its first invocation.
	Once bool
}

// DefaultSubscriptionConfig returns a default subscription configuration.
func DefaultSubscriptionConfig() SubscriptionConfig {
	return SubscriptionConfig{
		Priority: PriorityNormal,
	}
}

// SubscriptionOption is a function that configures a subscription.
type SubscriptionOption func(*SubscriptionConfig)

// WithPriority sets the subscription priority.
func WithPriority(p Priority) SubscriptionOption {
	return func(c *SubscriptionConfig) {
		c.Priority = p
	}
}

// WithFilter sets a filter predicate.
func WithFilter(f FilterFunc) SubscriptionOption {
	return func(c *SubscriptionConfig) {
		c.Filter = f
	}
}

// WithErrorHandler routes handler failures to h instead of the bus log.
func WithErrorHandler(h ErrorHandler) SubscriptionOption {
	return func(c *SubscriptionConfig) {
		c.ErrorHandler = h
	}
}

// WithOnce sets the subscription to be removed after its first invocation.
func WithOnce() SubscriptionOption {
	return func(c *SubscriptionConfig) {
		c.Once = true
	}
}

// subscription is a registered (type, handler, options) tuple.
type subscription struct {
	id      string
	msgType string
	handler Handler
	config  SubscriptionConfig

	// cancelled is set on unsubscribe so in-flight snapshots skip it.
	cancelled atomic.Bool

	// fired claims a once-subscription for exactly one delivery.
	fired atomic.Bool
}

func newSubscription(id, msgType string, h Handler, opts ...SubscriptionOption) *subscription {
	config := DefaultSubscriptionConfig()
	for _, opt := range opts {
		opt(&config)
	}
	return &subscription{
		id:      id,
		msgType: msgType,
		handler: h,
		config:  config,
	}
}

// claim reports whether the subscription may receive the current message.
func (s *subscription) claim() bool {
	if s.cancelled.Load() {
		return false
	}
	if s.config.Once {
		return s.fired.CompareAndSwap(false, true)
	}
	return true
}
