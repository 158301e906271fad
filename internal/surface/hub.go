// Package surface fans outbound messages out to connected display surfaces.
package surface

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/timmy/waifeed/internal/domain"
)

const DefaultBuffer = 16

var (
	ErrHubClosed          = errors.New("surface hub is closed")
	ErrSubscriberExists   = errors.New("surface already subscribed")
	ErrSubscriberNotFound = errors.New("surface not found")
)

// Stats counts deliveries to one surface.
type Stats struct {
	Sent    uint64 `json:"sent"`
	Dropped uint64 `json:"dropped"`
}

type subscriber struct {
	ch      chan domain.OutboundMessage
	sent    atomic.Uint64
	dropped atomic.Uint64
}

// Hub broadcasts messages to every subscribed surface.
// Publish never blocks: a surface whose buffer is full misses the message.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]*subscriber
	buffer      int
	published   atomic.Uint64
	closed      bool
}

// NewHub creates a hub with a per-surface buffer; buffer <= 0 uses DefaultBuffer.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{
		subscribers: make(map[string]*subscriber),
		buffer:      buffer,
	}
}

// Subscribe registers a surface and returns its message channel.
// The channel is closed by Unsubscribe or Close.
func (h *Hub) Subscribe(id string) (<-chan domain.OutboundMessage, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrHubClosed
	}
	if _, exists := h.subscribers[id]; exists {
		return nil, ErrSubscriberExists
	}

	sub := &subscriber{ch: make(chan domain.OutboundMessage, h.buffer)}
	h.subscribers[id] = sub
	return sub.ch, nil
}

// Unsubscribe removes a surface and closes its channel.
func (h *Hub) Unsubscribe(id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub, exists := h.subscribers[id]
	if !exists {
		return ErrSubscriberNotFound
	}
	delete(h.subscribers, id)
	close(sub.ch)
	return nil
}

// Publish delivers msg to every surface without blocking.
func (h *Hub) Publish(msg domain.OutboundMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return
	}
	h.published.Add(1)

	for _, sub := range h.subscribers {
		select {
		case sub.ch <- msg:
			sub.sent.Add(1)
		default:
			sub.dropped.Add(1)
		}
	}
}

// Stats returns delivery counters for a surface.
func (h *Hub) Stats(id string) (Stats, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	sub, exists := h.subscribers[id]
	if !exists {
		return Stats{}, ErrSubscriberNotFound
	}
	return Stats{Sent: sub.sent.Load(), Dropped: sub.dropped.Load()}, nil
}

// Count returns the number of connected surfaces.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Published returns the total number of Publish calls accepted.
func (h *Hub) Published() uint64 {
	return h.published.Load()
}

// Close disconnects every surface. Further publishes are ignored.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for id, sub := range h.subscribers {
		close(sub.ch)
		delete(h.subscribers, id)
	}
}
