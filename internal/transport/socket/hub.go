// Package socket implements the bidirectional socket transport (spec
// §4.7 "legacy"): room-based pub/sub over long-lived gorilla/websocket
// connections, grounded on the teacher's pkg/websocket hub/client, with
// registration re-expressed to resolve through RAMEN before any room
// operation (spec §9 redesign flag on ambiguous user/driver ids).
package socket

import (
	"sync"

	"go.uber.org/zap"

	"github.com/raahi/dispatch-core/internal/busevents"
	"github.com/raahi/dispatch-core/pkg/logger"
)

// Hub maintains every connected socket client grouped into rooms (channel
// names from busevents, reused directly rather than a parallel naming
// scheme).
type Hub struct {
	mu sync.RWMutex

	// sockets keyed by a process-unique connection id (one driver may hold
	// several, spec §4.7 multi-device support).
	sockets map[string]*Client

	// rooms: channel -> set<socketId>.
	rooms map[string]map[string]struct{}
}

// NewHub constructs an empty Hub.
func NewHub() *Hub {
	return &Hub{
		sockets: make(map[string]*Client),
		rooms:   make(map[string]map[string]struct{}),
	}
}

// Name identifies this transport.
func (h *Hub) Name() string { return "socket" }

// Register adds a client to the hub without joining any room yet.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sockets[c.ID] = c
}

// Unregister removes a client and drops it from every room it had joined.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.sockets[c.ID]; !ok {
		return
	}
	delete(h.sockets, c.ID)
	for room := range c.rooms {
		if set, ok := h.rooms[room]; ok {
			delete(set, c.ID)
			if len(set) == 0 {
				delete(h.rooms, room)
			}
		}
	}
	c.Close()
}

// Join adds a client's socket to room, verifying membership actually took
// effect before returning (spec §4.7 registration step 3/4).
func (h *Hub) Join(c *Client, room string) bool {
	h.mu.Lock()
	set, ok := h.rooms[room]
	if !ok {
		set = make(map[string]struct{})
		h.rooms[room] = set
	}
	set[c.ID] = struct{}{}
	c.rooms[room] = struct{}{}
	h.mu.Unlock()

	return h.GetChannelSize(room) > 0
}

// Leave removes a client's socket from room.
func (h *Hub) Leave(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.rooms[room]; ok {
		delete(set, c.ID)
		if len(set) == 0 {
			delete(h.rooms, room)
		}
	}
	delete(c.rooms, room)
}

// Deliver implements busevents.RealtimeTransport: send event to every
// socket joined to channel. A client with a full send buffer is dropped
// rather than allowed to block the publisher (spec §4.7 "Suspension
// points").
func (h *Hub) Deliver(channel string, event busevents.Event) {
	h.mu.RLock()
	ids := make([]string, 0, len(h.rooms[channel]))
	for id := range h.rooms[channel] {
		ids = append(ids, id)
	}
	clients := make([]*Client, 0, len(ids))
	for _, id := range ids {
		if c, ok := h.sockets[id]; ok {
			clients = append(clients, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range clients {
		select {
		case c.Send <- event:
		default:
			logger.Warn("socket client dropped, send buffer full",
				zap.String("socketId", c.ID), zap.String("channel", channel))
			h.Unregister(c)
		}
	}
}

// GetChannelSize reports the number of sockets joined to channel.
func (h *Hub) GetChannelSize(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[channel])
}

// IsHealthy always reports true; the socket hub has no external
// dependency independent of process health.
func (h *Hub) IsHealthy() bool { return true }

// DriverSocketCount returns how many open sockets a driver currently
// holds, used to decide full-disconnect semantics for multi-device
// drivers (spec §4.7 "full disconnect requires all sockets to close").
func (h *Hub) DriverSocketCount(driverID string) int {
	return h.GetChannelSize(busevents.DriverChannel(driverID))
}
