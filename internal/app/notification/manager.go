// Package notification provides the notification manager for broadcasting
// engine updates to subscribers.
package notification

import (
	"sync"

	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"
)

// DefaultBuffer is the per-subscriber buffer used when Subscribe is given a
// non-positive size.
const DefaultBuffer = 16

// Envelope wraps a broadcast payload with its sequence number.
type Envelope[T any] struct {
	SequenceNo uint64
	Payload    T
}

// Subscription is a subscriber's handle. C is closed on Unsubscribe or Close.
type Subscription[T any] struct {
	ID string
	C  <-chan Envelope[T]
}

type subscriber[T any] struct {
	id string
	ch chan Envelope[T]
}

// Manager manages subscriptions and broadcasting. Broadcast never blocks: a
// subscriber that falls behind loses its oldest pending envelopes.
type Manager[T any] struct {
	mu            sync.RWMutex
	subscriptions map[string]*subscriber[T]
	sequenceNo    uint64
	closed        bool
}

// NewManager creates a new notification manager.
func NewManager[T any]() *Manager[T] {
	return &Manager[T]{
		subscriptions: make(map[string]*subscriber[T]),
	}
}

// Subscribe adds a new subscription.
func (m *Manager[T]) Subscribe(buffer int) Subscription[T] {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	sub := &subscriber[T]{
		id: uuid.New().String(),
		ch: make(chan Envelope[T], buffer),
	}
	if m.closed {
		close(sub.ch)
	} else {
		m.subscriptions[sub.id] = sub
	}
	return Subscription[T]{ID: sub.id, C: sub.ch}
}

// Unsubscribe removes a subscription and closes its channel.
func (m *Manager[T]) Unsubscribe(subscriptionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sub, ok := m.subscriptions[subscriptionID]; ok {
		close(sub.ch)
		delete(m.subscriptions, subscriptionID)
	}
}

// Broadcast sends payload to all subscribers and returns its sequence number.
func (m *Manager[T]) Broadcast(payload T) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sequenceNo++
	env := Envelope[T]{SequenceNo: m.sequenceNo, Payload: payload}
	for _, sub := range m.subscriptions {
		if !offer(sub.ch, env) {
			zlog.Debug().Msgf("notification: subscriber %s lagging, dropped oldest", sub.id)
		}
	}
	return env.SequenceNo
}

// offer delivers env, dropping the oldest buffered envelope if the channel
// is full. It returns false if something was dropped.
func offer[T any](ch chan Envelope[T], env Envelope[T]) bool {
	select {
	case ch <- env:
		return true
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- env:
	default:
	}
	return false
}

// SequenceNo returns the last broadcast sequence number.
func (m *Manager[T]) SequenceNo() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sequenceNo
}

// SubscriberCount returns the number of active subscribers.
func (m *Manager[T]) SubscriberCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscriptions)
}

// Close closes the manager and removes all subscriptions.
func (m *Manager[T]) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, sub := range m.subscriptions {
		close(sub.ch)
		delete(m.subscriptions, id)
	}
	m.closed = true
}
