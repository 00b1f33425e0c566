package event

import "sync"

// Registry manages subscriptions organized by message type.
// It is thread-safe for concurrent access.
type Registry struct {
	mu     sync.RWMutex
	byType map[string][]*subscription
	byID   map[string]*subscription
}

// NewRegistry creates a new subscription registry.
func NewRegistry() *Registry {
	return &Registry{
		byType: make(map[string][]*subscription),
		byID:   make(map[string]*subscription),
	}
}

// Add appends a subscription, keeping registration order per type.
// With a positive limit, Add fails once that many subscriptions exist.
func (r *Registry) Add(sub *subscription, limit int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if limit > 0 && len(r.byID) >= limit {
		return ErrSubscriptionLimitExceeded
	}

	r.byType[sub.msgType] = append(r.byType[sub.msgType], sub)
	r.byID[sub.id] = sub
	return nil
}

// Remove removes a subscription by ID.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, exists := r.byID[id]
	if !exists {
		return false
	}
	sub.cancelled.Store(true)
	delete(r.byID, id)

	subs := r.byType[sub.msgType]
	for i, s := range subs {
		if s.id == id {
			subs = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(subs) == 0 {
		delete(r.byType, sub.msgType)
	} else {
		r.byType[sub.msgType] = subs
	}
	return true
}

// RemoveType removes every subscription for msgType and returns how many.
func (r *Registry) RemoveType(msgType string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs := r.byType[msgType]
	for _, sub := range subs {
		sub.cancelled.Store(true)
		delete(r.byID, sub.id)
	}
	delete(r.byType, msgType)
	return len(subs)
}

// Snapshot returns a copy of the subscriptions for msgType in registration order.
func (r *Registry) Snapshot(msgType string) []*subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	subs := r.byType[msgType]
	if len(subs) == 0 {
		return nil
	}
	result := make([]*subscription, len(subs))
	copy(result, subs)
	return result
}

// Count returns the total number of subscriptions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// CountByType returns the number of subscriptions for msgType.
func (r *Registry) CountByType(msgType string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byType[msgType])
}

// Clear removes all subscriptions.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, sub := range r.byID {
		sub.cancelled.Store(true)
	}
	r.byType = make(map[string][]*subscription)
	r.byID = make(map[string]*subscription)
}
