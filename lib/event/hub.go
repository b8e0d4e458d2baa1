// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package event

import "sync"

// SubscriptionBufferSize absorbs bursts, such as the metrics frame
// and a status snapshot arriving together, without stalling the
// publisher.
const SubscriptionBufferSize = 64

// Hub fans events out to subscribers. Each subscriber sees every
// event published after it subscribed, in publish order. Publish
// blocks while a subscriber's buffer is full: events are never
// dropped, so a stalled subscriber stalls its publisher. Closing a
// subscription releases a publisher blocked on it.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[*Subscription]struct{}
	closed      bool

	closing     chan struct{}
	closingOnce sync.Once
}

// Subscription is one subscriber's view of a Hub.
type Subscription struct {
	// C receives events. It is closed when the Hub closes; it is not
	// closed by Subscription.Close.
	C <-chan Event

	channel chan Event
	done    chan struct{}
	once    sync.Once
	hub     *Hub
}

// NewHub returns an empty Hub.
func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[*Subscription]struct{}),
		closing:     make(chan struct{}),
	}
}

// Subscribe registers a new subscriber. Subscribing to a closed Hub
// returns a subscription whose channel is already closed.
func (h *Hub) Subscribe() *Subscription {
	channel := make(chan Event, SubscriptionBufferSize)
	subscription := &Subscription{
		C:       channel,
		channel: channel,
		done:    make(chan struct{}),
		hub:     h,
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(channel)
		return subscription
	}
	h.subscribers[subscription] = struct{}{}
	return subscription
}

// Close stops delivery to this subscription.
func (s *Subscription) Close() {
	s.once.Do(func() {
		close(s.done)
		s.hub.mu.Lock()
		delete(s.hub.subscribers, s)
		s.hub.mu.Unlock()
	})
}

// Publish delivers event to every current subscriber. Callers must
// serialize their own Publish calls to keep ordering meaningful; a
// client does this by publishing only from its delivery goroutine.
func (h *Hub) Publish(event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	for subscription := range h.subscribers {
		select {
		case subscription.channel <- event:
		case <-subscription.done:
		case <-h.closing:
			return
		}
	}
}

// Close closes every subscriber channel, abandoning any blocked
// Publish. Publish after Close does nothing.
func (h *Hub) Close() {
	h.closingOnce.Do(func() { close(h.closing) })
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for subscription := range h.subscribers {
		close(subscription.channel)
	}
	h.subscribers = nil
}
