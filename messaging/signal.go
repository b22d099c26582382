package messaging

import (
	"sync"
)

// Signal is a typed publish point. Subscribers are called synchronously,
// in subscription order, on the goroutine that calls Publish.
type Signal[T any] struct {
	name   string
	mu     sync.RWMutex
	nextID uint64
	subs   []signalSubscriber[T]
}

type signalSubscriber[T any] struct {
	id uint64
	fn func(T)
}

// Subscription is the handle returned by Signal.Subscribe
type Subscription struct {
	once   sync.Once
	cancel func()
}

// Unsubscribe removes the subscriber. Calling it more than once is a no-op.
func (s *Subscription) Unsubscribe() {
	if s == nil || s.cancel == nil {
		return
	}
	s.once.Do(s.cancel)
}

// NewSignal creates a signal for one event kind
func NewSignal[T any](name string) *Signal[T] {
	return &Signal[T]{name: name}
}

// Name returns the event kind this signal publishes
func (s *Signal[T]) Name() string {
	return s.name
}

// Subscribe adds a subscriber. A nil fn yields an inert subscription.
func (s *Signal[T]) Subscribe(fn func(T)) *Subscription {
	if fn == nil {
		return &Subscription{}
	}

	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.subs = append(s.subs, signalSubscriber[T]{id: id, fn: fn})
	s.mu.Unlock()

	return &Subscription{cancel: func() { s.remove(id) }}
}

func (s *Signal[T]) remove(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, sub := range s.subs {
		if sub.id == id {
			s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
			return
		}
	}
}

// Publish delivers v to every current subscriber and returns how many were
// called. It returns only after the last subscriber returns, so subscriber
// latency is felt by the publisher.
func (s *Signal[T]) Publish(v T) int {
	s.mu.RLock()
	subs := make([]signalSubscriber[T], len(s.subs))
	copy(subs, s.subs)
	s.mu.RUnlock()

	for _, sub := range subs {
		sub.fn(v)
	}
	return len(subs)
}

// Len returns the number of subscribers
func (s *Signal[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}
