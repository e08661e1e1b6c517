// Package sse implements the SSE manager transport (spec §4.7): a
// server-push HTTP stream fan-out keyed by channel subscription, grounded
// on the teacher's pkg/websocket hub/client room bookkeeping adapted from
// socket rooms to SSE subscriber sets.
package sse

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/raahi/dispatch-core/internal/busevents"
	"github.com/raahi/dispatch-core/pkg/logger"
)

const heartbeatInterval = 15 * time.Second

// Frame is one SSE wire frame: monotone id, event type, JSON data (spec
// §4.7 "Each outbound frame uses SSE framing with a monotone id:").
type Frame struct {
	ID    uint64
	Event string
	Data  []byte
}

// Client is one connected SSE subscriber. Frames is unbuffered-safe via a
// bounded channel; a full channel means the client is slow and is dropped
// rather than allowed to back-pressure the publisher (spec §4.7
// "Suspension points" — delivery must be non-blocking-fail).
type Client struct {
	ID       string
	Frames   chan Frame
	channels map[string]struct{}
	mu       sync.Mutex
	closed   int32
}

func newClient(id string) *Client {
	return &Client{
		ID:       id,
		Frames:   make(chan Frame, 64),
		channels: make(map[string]struct{}),
	}
}

// Close marks the client closed and closes its frame channel; safe to call
// more than once.
func (c *Client) Close() {
	if atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		close(c.Frames)
	}
}

func (c *Client) isClosed() bool {
	return atomic.LoadInt32(&c.closed) == 1
}

// Manager owns every SSE client and the channel -> subscriber index. It
// implements busevents.RealtimeTransport.
type Manager struct {
	mu          sync.RWMutex
	clients     map[string]*Client
	subscribers map[string]map[string]struct{} // channel -> set<clientId>

	nextFrameID uint64
}

// NewManager constructs an empty SSE manager.
func NewManager() *Manager {
	return &Manager{
		clients:     make(map[string]*Client),
		subscribers: make(map[string]map[string]struct{}),
	}
}

// Name identifies this transport for metrics and logging.
func (m *Manager) Name() string { return "sse" }

// Connect registers a new client under clientID, subscribed to the given
// channels, and starts its heartbeat. Callers are expected to stream
// c.Frames to the underlying http.ResponseWriter.
func (m *Manager) Connect(clientID string, channels ...string) *Client {
	c := newClient(clientID)

	m.mu.Lock()
	if existing, ok := m.clients[clientID]; ok {
		m.removeClientLocked(existing)
	}
	m.clients[clientID] = c
	m.mu.Unlock()

	for _, ch := range channels {
		m.Subscribe(clientID, ch)
	}

	go m.heartbeatLoop(c)
	return c
}

// Disconnect removes a client and every subscription it held.
func (m *Manager) Disconnect(clientID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.clients[clientID]; ok {
		m.removeClientLocked(c)
	}
}

func (m *Manager) removeClientLocked(c *Client) {
	delete(m.clients, c.ID)
	c.mu.Lock()
	for ch := range c.channels {
		if set, ok := m.subscribers[ch]; ok {
			delete(set, c.ID)
			if len(set) == 0 {
				delete(m.subscribers, ch)
			}
		}
	}
	c.mu.Unlock()
	c.Close()
}

// Subscribe adds clientID to channel.
func (m *Manager) Subscribe(clientID, channel string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clients[clientID]
	if !ok {
		return
	}
	set, ok := m.subscribers[channel]
	if !ok {
		set = make(map[string]struct{})
		m.subscribers[channel] = set
	}
	set[clientID] = struct{}{}
	c.mu.Lock()
	c.channels[channel] = struct{}{}
	c.mu.Unlock()
}

// Unsubscribe removes clientID from channel.
func (m *Manager) Unsubscribe(clientID, channel string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if set, ok := m.subscribers[channel]; ok {
		delete(set, clientID)
		if len(set) == 0 {
			delete(m.subscribers, channel)
		}
	}
	if c, ok := m.clients[clientID]; ok {
		c.mu.Lock()
		delete(c.channels, channel)
		c.mu.Unlock()
	}
}

// RebindH3Subscription implements the "driver moved to cell X" churn:
// unsubscribe the old cell set, subscribe the new one (spec §4.7).
func (m *Manager) RebindH3Subscription(clientID string, oldCells, newCells []string) {
	for _, c := range oldCells {
		m.Unsubscribe(clientID, busevents.H3Channel(c))
	}
	for _, c := range newCells {
		m.Subscribe(clientID, busevents.H3Channel(c))
	}
}

// Deliver implements busevents.RealtimeTransport: fan the event out to
// every subscriber of channel, skipping (and logging) slow clients rather
// than blocking.
func (m *Manager) Deliver(channel string, event busevents.Event) {
	data, err := json.Marshal(event.Payload)
	if err != nil {
		logger.Warn("sse failed to marshal event payload", zap.String("channel", channel), zap.Error(err))
		return
	}
	frame := Frame{
		ID:    atomic.AddUint64(&m.nextFrameID, 1),
		Event: string(event.Kind),
		Data:  data,
	}

	m.mu.RLock()
	ids := make([]string, 0, len(m.subscribers[channel]))
	for id := range m.subscribers[channel] {
		ids = append(ids, id)
	}
	clients := make([]*Client, 0, len(ids))
	for _, id := range ids {
		if c, ok := m.clients[id]; ok {
			clients = append(clients, c)
		}
	}
	m.mu.RUnlock()

	for _, c := range clients {
		if c.isClosed() {
			continue
		}
		select {
		case c.Frames <- frame:
		default:
			logger.Warn("sse client dropped, write buffer full",
				zap.String("clientId", c.ID), zap.String("channel", channel))
			m.Disconnect(c.ID)
		}
	}
}

// GetChannelSize reports the number of subscribers on channel.
func (m *Manager) GetChannelSize(channel string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscribers[channel])
}

// IsHealthy always reports true; the SSE manager has no external
// dependency that can fail independently of process health.
func (m *Manager) IsHealthy() bool { return true }

func (m *Manager) heartbeatLoop(c *Client) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for range ticker.C {
		if c.isClosed() {
			return
		}
		select {
		case c.Frames <- Frame{Event: "heartbeat", Data: []byte(fmt.Sprintf("%d", time.Now().Unix()))}:
		default:
		}
	}
}
