// Package stream provides fan-out distribution of signals to subscribers.
package stream

import (
	"sync"
	"time"

	"orderflow-signals/internal/models"
)

// HubConfig holds configuration for the signal hub.
type HubConfig struct {
	// SubscriberBufferSize is the size of each subscriber's channel buffer.
	SubscriberBufferSize int
}

// DefaultHubConfig returns the default hub configuration.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		SubscriberBufferSize: 16,
	}
}

// Hub distributes signal updates to multiple subscribers per instrument.
// Delivery is non-blocking: a slow or absent subscriber has its update
// dropped instead of stalling the publisher or other subscribers.
type Hub struct {
	config      HubConfig
	mu          sync.RWMutex
	subscribers map[string][]*Subscriber
	closed      bool

	metricsMu        sync.RWMutex
	signalsPublished uint64
	signalsDelivered uint64
	signalsDropped   uint64
}

// Subscriber represents one subscription channel with metadata.
type Subscriber struct {
	Channel      chan models.Signal
	DroppedCount int
	CreatedAt    time.Time
}

// NewHub creates a hub with default configuration.
func NewHub() *Hub {
	return NewHubWithConfig(DefaultHubConfig())
}

// NewHubWithConfig creates a hub with custom configuration.
func NewHubWithConfig(config HubConfig) *Hub {
	return &Hub{
		config:      config,
		subscribers: make(map[string][]*Subscriber),
	}
}

// Subscribe adds a subscriber for an instrument and returns the channel
// it will receive every published update on, from now until Unsubscribe
// or Stop.
func (h *Hub) Subscribe(symbol string) <-chan models.Signal {
	ch := make(chan models.Signal, h.config.SubscriberBufferSize)
	sub := &Subscriber{
		Channel:   ch,
		CreatedAt: time.Now(),
	}

	h.mu.Lock()
	h.subscribers[symbol] = append(h.subscribers[symbol], sub)
	h.mu.Unlock()

	return ch
}

// Unsubscribe removes a subscriber channel for an instrument and closes it.
func (h *Hub) Unsubscribe(symbol string, ch <-chan models.Signal) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.subscribers[symbol]
	for i, sub := range subs {
		if sub.Channel == ch {
			close(sub.Channel)
			h.subscribers[symbol] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(h.subscribers[symbol]) == 0 {
		delete(h.subscribers, symbol)
	}
}

// Publish sends a signal to every current subscriber of its instrument.
// Sends are non-blocking; a full subscriber buffer counts as a drop for
// that subscriber only.
func (h *Hub) Publish(sig models.Signal) {
	// The read lock is held across the sends. Unsubscribe and Stop close
	// channels under the write lock, so no channel can be closed while a
	// publish is in flight.
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return
	}

	h.metricsMu.Lock()
	h.signalsPublished++
	h.metricsMu.Unlock()

	for _, sub := range h.subscribers[sig.Symbol] {
		select {
		case sub.Channel <- sig:
			h.metricsMu.Lock()
			h.signalsDelivered++
			h.metricsMu.Unlock()
		default:
			h.metricsMu.Lock()
			sub.DroppedCount++
			h.signalsDropped++
			h.metricsMu.Unlock()
		}
	}
}

// Stop closes all subscriber channels. Further publishes are no-ops.
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true

	for symbol, subs := range h.subscribers {
		for _, sub := range subs {
			close(sub.Channel)
		}
		delete(h.subscribers, symbol)
	}
}

// SubscriberCount returns the number of subscribers for an instrument.
func (h *Hub) SubscriberCount(symbol string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[symbol])
}

// TotalSubscriberCount returns the number of subscribers across all
// instruments.
func (h *Hub) TotalSubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	count := 0
	for _, subs := range h.subscribers {
		count += len(subs)
	}
	return count
}

// Metrics returns hub delivery counters.
func (h *Hub) Metrics() HubMetrics {
	h.metricsMu.RLock()
	m := HubMetrics{
		SignalsPublished: h.signalsPublished,
		SignalsDelivered: h.signalsDelivered,
		SignalsDropped:   h.signalsDropped,
	}
	h.metricsMu.RUnlock()

	// Taken outside metricsMu. Publish nests the locks the other way
	// around, so nesting them here as well would invert the order.
	m.Subscribers = h.TotalSubscriberCount()
	return m
}

// HubMetrics contains hub delivery counters.
type HubMetrics struct {
	SignalsPublished uint64
	SignalsDelivered uint64
	SignalsDropped   uint64
	Subscribers      int
}
