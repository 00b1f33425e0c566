package event

import (
	"context"
	"sync"
)

// Subscriber tracks subscriptions made through it so they can be dropped
// together, typically when a plugin deactivates.
type Subscriber struct {
	bus    Bus
	ids    []string
	mu     sync.Mutex
	closed bool
}

// NewSubscriber creates a new Subscriber wrapping the given bus.
func NewSubscriber(bus Bus) *Subscriber {
	return &Subscriber{bus: bus}
}

// Subscribe creates a subscription and tracks it for cleanup.
func (s *Subscriber) Subscribe(msgType string, handler Handler, opts ...SubscriptionOption) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", ErrSubscriberClosed
	}

	id, err := s.bus.Subscribe(msgType, handler, opts...)
	if err != nil {
		return "", err
	}
	s.ids = append(s.ids, id)
	return id, nil
}

// SubscribeFunc creates a subscription with a function handler.
func (s *Subscriber) SubscribeFunc(msgType string, fn HandlerFunc, opts ...SubscriptionOption) (string, error) {
	return s.Subscribe(msgType, fn, opts...)
}

// SubscribeOnce creates a subscription removed after its first invocation.
func (s *Subscriber) SubscribeOnce(msgType string, handler Handler, opts ...SubscriptionOption) (string, error) {
	opts = append(opts, WithOnce())
	return s.Subscribe(msgType, handler, opts...)
}

// SubscribePayload creates a subscription whose handler receives the payload
// asserted to T. Messages carrying another payload type are skipped and count
// as delivered.
func SubscribePayload[T any](s *Subscriber, msgType string, handler func(ctx context.Context, payload T, msg Message) error, opts ...SubscriptionOption) (string, error) {
	wrapped := HandlerFunc(func(ctx context.Context, msg Message) error {
		payload, ok := PayloadAs[T](msg)
		if !ok {
			return nil
		}
		return handler(ctx, payload, msg)
	})
	return s.Subscribe(msgType, wrapped, opts...)
}

// Unsubscribe removes a specific tracked subscription.
func (s *Subscriber) Unsubscribe(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, tracked := range s.ids {
		if tracked == id {
			s.ids = append(s.ids[:i], s.ids[i+1:]...)
			break
		}
	}
	return s.bus.Unsubscribe(id)
}

// UnsubscribeAll removes all subscriptions made through this subscriber.
func (s *Subscriber) UnsubscribeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.ids {
		s.bus.Unsubscribe(id)
	}
	s.ids = s.ids[:0]
}

// Close cancels all subscriptions and prevents new ones.
func (s *Subscriber) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	for _, id := range s.ids {
		s.bus.Unsubscribe(id)
	}
	s.ids = nil
	return nil
}

// Count returns the number of tracked subscriptions.
// Once-subscriptions removed by the bus stay counted until unsubscribed here.
func (s *Subscriber) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}

// Bus returns the underlying bus.
func (s *Subscriber) Bus() Bus {
	return s.bus
}
