package event

import (
	"context"
	"sort"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Bus is the message bus interface.
type Bus interface {
	// Publishing
	Publish(ctx context.Context, msgType string, payload any, source string) (int, error)
	PublishMessage(ctx context.Context, out Outgoing) (int, error)

	// Subscription
	Subscribe(msgType string, handler Handler, opts ...SubscriptionOption) (string, error)
	SubscribeFunc(msgType string, fn HandlerFunc, opts ...SubscriptionOption) (string, error)
	Once(msgType string, handler Handler, opts ...SubscriptionOption) (string, error)
	Unsubscribe(id string) bool
	UnsubscribeAll(msgType string) int
	Clear()

	// Status
	SubscriptionCount(msgType string) int
	Stats() Stats
}

// bus is the default Bus implementation.
type bus struct {
	registry *Registry
	config   busConfig
	logger   *zap.Logger

	// Stats
	messagesPublished atomic.Uint64
	messagesDelivered atomic.Uint64
	handlersExecuted  atomic.Uint64
	handlerErrors     atomic.Uint64
	handlerPanics     atomic.Uint64
	handlerTimeouts   atomic.Uint64
	filterPanics      atomic.Uint64
}

// NewBus creates a new message bus with the given options.
func NewBus(opts ...BusOption) Bus {
	config := defaultBusConfig()
	for _, opt := range opts {
		opt(&config)
	}
	return &bus{
		registry: NewRegistry(),
		config:   config,
		logger:   config.logger,
	}
}

// Subscribe registers handler for messages of msgType and returns the
// subscription ID.
func (b *bus) Subscribe(msgType string, handler Handler, opts ...SubscriptionOption) (string, error) {
	if handler == nil {
		return "", ErrNilHandler
	}
	if msgType == "" {
		return "", ErrInvalidType
	}

	sub := newSubscription(uuid.NewString(), msgType, handler, opts...)
	if err := b.registry.Add(sub, b.config.maxSubscriptions); err != nil {
		return "", err
	}
	return sub.id, nil
}

// SubscribeFunc is a convenience method for subscribing with a function handler.
func (b *bus) SubscribeFunc(msgType string, fn HandlerFunc, opts ...SubscriptionOption) (string, error) {
	if fn == nil {
		return "", ErrNilHandler
	}
	return b.Subscribe(msgType, fn, opts...)
}

// Once subscribes a handler that is removed after its first invocation.
func (b *bus) Once(msgType string, handler Handler, opts ...SubscriptionOption) (string, error) {
	opts = append(opts, WithOnce())
	return b.Subscribe(msgType, handler, opts...)
}

// Unsubscribe removes a subscription. It reports whether the ID was known.
func (b *bus) Unsubscribe(id string) bool {
	return b.registry.Remove(id)
}

// UnsubscribeAll removes every subscription for msgType.
func (b *bus) UnsubscribeAll(msgType string) int {
	return b.registry.RemoveType(msgType)
}

// Clear removes all subscriptions.
func (b *bus) Clear() {
	b.registry.Clear()
}

// SubscriptionCount returns the number of subscriptions for msgType.
func (b *bus) SubscriptionCount(msgType string) int {
	return b.registry.CountByType(msgType)
}

// Publish builds a message and delivers it to the subscribers of msgType.
// It returns the number of handlers that completed without error.
func (b *bus) Publish(ctx context.Context, msgType string, payload any, source string) (int, error) {
	return b.PublishMessage(ctx, Outgoing{Type: msgType, Payload: payload, Source: source})
}

// PublishMessage delivers out to its subscribers. Only an empty type is an
// error; handler failures are contained in the delivery loop.
func (b *bus) PublishMessage(ctx context.Context, out Outgoing) (int, error) {
	if out.Type == "" {
		return 0, ErrInvalidType
	}

	msg := newMessage(out)
	b.messagesPublished.Add(1)
	return b.deliver(ctx, msg), nil
}

// deliver runs the subscribers of msg sequentially in priority order.
func (b *bus) deliver(ctx context.Context, msg Message) int {
	subs := b.registry.Snapshot(msg.Type)
	if len(subs) == 0 {
		return 0
	}

	sort.SliceStable(subs, func(i, j int) bool {
		return subs[i].config.Priority > subs[j].config.Priority
	})

	delivered := 0
	var fired []string
	for _, sub := range subs {
		if err := ctx.Err(); err != nil {
			b.logger.Debug("delivery interrupted",
				zap.String("type", msg.Type),
				zap.String("message", msg.ID),
				zap.Error(err))
			break
		}

		ok, panicked := safeFilter(sub.config.Filter, msg)
		if panicked {
			b.filterPanics.Add(1)
			b.logger.Warn("subscription filter panicked",
				zap.String("type", msg.Type),
				zap.String("subscription", sub.id))
		}
		if !ok || !sub.claim() {
			continue
		}
		if sub.config.Once {
			fired = append(fired, sub.id)
		}

		res := executeWithTimeout(ctx, sub.handler, msg, b.config.handlerTimeout)
		b.handlersExecuted.Add(1)

		if res.success() {
			b.messagesDelivered.Add(1)
			delivered++
			continue
		}

		switch {
		case res.panicked:
			b.handlerPanics.Add(1)
		case res.timedOut:
			b.handlerTimeouts.Add(1)
		default:
			b.handlerErrors.Add(1)
		}
		b.reportFailure(sub, msg, &HandlerError{SubscriptionID: sub.id, Type: msg.Type, Err: res.err})
	}

	for _, id := range fired {
		b.registry.Remove(id)
	}
	return delivered
}

// reportFailure routes a handler failure to the subscription's error handler
// or, without one, to the log.
func (b *bus) reportFailure(sub *subscription, msg Message, err *HandlerError) {
	if sub.config.ErrorHandler == nil {
		b.logger.Warn("message handler failed",
			zap.String("type", msg.Type),
			zap.String("subscription", sub.id),
			zap.String("source", msg.Source),
			zap.Error(err.Err))
		return
	}

	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("subscription error handler panicked",
				zap.String("type", msg.Type),
				zap.String("subscription", sub.id),
				zap.Any("panic", r))
		}
	}()
	sub.config.ErrorHandler(err, msg)
}

// Stats returns current bus statistics.
func (b *bus) Stats() Stats {
	return Stats{
		MessagesPublished:   b.messagesPublished.Load(),
		MessagesDelivered:   b.messagesDelivered.Load(),
		HandlersExecuted:    b.handlersExecuted.Load(),
		HandlerErrors:       b.handlerErrors.Load(),
		HandlerPanics:       b.handlerPanics.Load(),
		HandlerTimeouts:     b.handlerTimeouts.Load(),
		FilterPanics:        b.filterPanics.Load(),
		ActiveSubscriptions: b.registry.Count(),
	}
}
