package event

import (
	"time"

	"go.uber.org/zap"
)

// BusOption configures a message Bus.
type BusOption func(*busConfig)

// busConfig contains configuration for the message bus.
type busConfig struct {
	// handlerTimeout bounds each handler invocation. Zero disables it.
	handlerTimeout time.Duration

	// maxSubscriptions caps the number of live subscriptions. Zero is unlimited.
	maxSubscriptions int

	logger *zap.Logger
}

// defaultBusConfig returns the default configuration: no timeout, no limit.
func defaultBusConfig() busConfig {
	return busConfig{
		logger: zap.NewNop(),
	}
}

// WithHandlerTimeout sets the per-handler timeout.
func WithHandlerTimeout(timeout time.Duration) BusOption {
	return func(c *busConfig) {
		if timeout >= 0 {
			c.handlerTimeout = timeout
		}
	}
}

// WithMaxSubscriptions caps the number of live subscriptions.
func WithMaxSubscriptions(n int) BusOption {
	return func(c *busConfig) {
		if n >= 0 {
			c.maxSubscriptions = n
		}
	}
}

// WithLogger sets the logger used to report handler and filter failures.
func WithLogger(l *zap.Logger) BusOption {
	return func(c *busConfig) {
		if l != nil {
			c.logger = l
		}
	}
}
