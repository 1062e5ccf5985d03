// Package notify implements the occupancy subscription registry and
// notification publisher. Delivery is at-most-once: each connection gets a
// buffered channel and a full buffer drops the update rather than blocking
// the publisher.
package notify

import (
	"sync"

	"eventbooking/internal/domain"
)

const defaultBufferSize = 32

// Hub is the in-memory Broadcaster for single-instance deployments.
type Hub struct {
	mu         sync.RWMutex
	conns      map[string]*connection
	topics     map[string]map[string]struct{} // eventID -> set of connIDs
	bufferSize int
}

type connection struct {
	ch     chan domain.Occupancy
	events map[string]struct{}
}

// NewHub returns an empty Hub.
func NewHub() *Hub {
	return &Hub{
		conns:      make(map[string]*connection),
		topics:     make(map[string]map[string]struct{}),
		bufferSize: defaultBufferSize,
	}
}

// Register adds a connection and returns its delivery channel plus a cancel
// function that removes the connection, all its subscriptions, and closes the
// channel. Cancel is safe to call more than once.
func (h *Hub) Register(connID string) (<-chan domain.Occupancy, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if old, ok := h.conns[connID]; ok {
		h.removeLocked(connID, old)
	}
	c := &connection{
		ch:     make(chan domain.Occupancy, h.bufferSize),
		events: make(map[string]struct{}),
	}
	h.conns[connID] = c

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if cur, ok := h.conns[connID]; ok && cur == c {
			h.removeLocked(connID, cur)
		}
	}
	return c.ch, cancel
}

// Join subscribes the connection to the event's topic. Unknown connections
// are ignored; joining twice is a no-op.
func (h *Hub) Join(connID, eventID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.conns[connID]
	if !ok {
		return
	}
	c.events[eventID] = struct{}{}
	set, ok := h.topics[eventID]
	if !ok {
		set = make(map[string]struct{})
		h.topics[eventID] = set
	}
	set[connID] = struct{}{}
}

// Leave unsubscribes the connection from the event's topic. Idempotent.
func (h *Hub) Leave(connID, eventID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if c, ok := h.conns[connID]; ok {
		delete(c.events, eventID)
	}
	h.leaveTopicLocked(connID, eventID)
}

// Publish delivers occ to every connection subscribed to the event at the
// moment of the call. Connections that join later receive nothing; there is
// no replay. A full buffer drops the update for that connection only.
func (h *Hub) Publish(eventID string, occ domain.Occupancy) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for connID := range h.topics[eventID] {
		c, ok := h.conns[connID]
		if !ok {
			continue
		}
		select {
		case c.ch <- occ:
		default:
			// Slow subscriber; drop rather than block the publisher.
		}
	}
}

// Close removes every connection and closes their channels.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for connID, c := range h.conns {
		h.removeLocked(connID, c)
	}
	return nil
}

func (h *Hub) removeLocked(connID string, c *connection) {
	for eventID := range c.events {
		h.leaveTopicLocked(connID, eventID)
	}
	delete(h.conns, connID)
	close(c.ch)
}

func (h *Hub) leaveTopicLocked(connID, eventID string) {
	set, ok := h.topics[eventID]
	if !ok {
		return
	}
	delete(set, connID)
	if len(set) == 0 {
		delete(h.topics, eventID)
	}
}
