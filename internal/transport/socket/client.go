package socket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/raahi/dispatch-core/internal/busevents"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024
)

// InboundMessage is a client -> server frame (spec §4.7 required client
// events: join ride room, leave ride room, driver-register, location-update,
// heartbeat).
type InboundMessage struct {
	Type     string          `json:"type"`
	RideID   string          `json:"rideId,omitempty"`
	DriverID string          `json:"driverId,omitempty"`
	UserID   string          `json:"userId,omitempty"`
	Lat      float64         `json:"lat,omitempty"`
	Lng      float64         `json:"lng,omitempty"`
	Heading  *float64        `json:"heading,omitempty"`
	Speed    *float64        `json:"speed,omitempty"`
	Raw      json.RawMessage `json:"-"`
}

// Client is one open socket connection. One driver may hold several
// (spec §4.7 multi-device support) — DriverID is set only once
// driver-register succeeds.
type Client struct {
	ID       string
	DriverID string
	Conn     *websocket.Conn
	Send     chan busevents.Event

	rooms map[string]struct{}
	mu    sync.RWMutex
}

// NewClient wraps conn for hub bookkeeping.
func NewClient(id string, conn *websocket.Conn) *Client {
	return &Client{
		ID:    id,
		Conn:  conn,
		Send:  make(chan busevents.Event, 256),
		rooms: make(map[string]struct{}),
	}
}

// SetDriverID records the resolved driverId after a successful
// driver-register (spec §9 redesign: resolved exactly once at the edge).
func (c *Client) SetDriverID(driverID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.DriverID = driverID
}

// GetDriverID returns the resolved driverId, empty if unregistered.
func (c *Client) GetDriverID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.DriverID
}

// Close closes the send channel; safe to call once per client lifetime,
// guarded by the hub holding the only reference during unregister.
func (c *Client) Close() {
	close(c.Send)
}

// ReadPump pumps inbound frames from the socket to handler, mirroring the
// teacher's pkg/websocket.Client.ReadPump structure.
func (c *Client) ReadPump(handler func(*Client, InboundMessage)) {
	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			return
		}
		var msg InboundMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		msg.Raw = raw
		handler(c, msg)
	}
}

// WritePump pumps outbound events to the socket as JSON frames, with a
// ping keepalive, mirroring the teacher's pkg/websocket.Client.WritePump.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case event, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
