package socket

import (
	"context"

	"go.uber.org/zap"

	"github.com/raahi/dispatch-core/internal/apperrors"
	"github.com/raahi/dispatch-core/internal/busevents"
	"github.com/raahi/dispatch-core/internal/driverstore"
	"github.com/raahi/dispatch-core/internal/ridestore"
	"github.com/raahi/dispatch-core/pkg/logger"
)

const transportName = "socket"

// Handlers wires inbound socket messages to RAMEN/Fireball, grounded on
// the teacher's pkg/websocket message-type dispatch (hub.HandleMessage),
// re-expressed so driver-register always resolves through RAMEN first
// (spec §9 redesign flag, §4.7 registration steps 1-4).
type Handlers struct {
	hub    *Hub
	bus    *busevents.Bus
	driver *driverstore.Store
	ride   *ridestore.Store
}

// NewHandlers constructs the socket message router.
func NewHandlers(hub *Hub, bus *busevents.Bus, driver *driverstore.Store, ride *ridestore.Store) *Handlers {
	return &Handlers{hub: hub, bus: bus, driver: driver, ride: ride}
}

// Dispatch routes one inbound message to its handler.
func (h *Handlers) Dispatch(c *Client, msg InboundMessage) {
	switch msg.Type {
	case "driver-register":
		h.handleDriverRegister(c, msg)
	case "join-ride":
		h.handleJoinRide(c, msg)
	case "leave-ride":
		h.handleLeaveRide(c, msg)
	case "location-update":
		h.handleLocationUpdate(c, msg)
	case "heartbeat":
		// no-op: ReadPump's deadline refresh already keeps the connection alive.
	default:
		logger.Warn("socket received unknown message type", zap.String("type", msg.Type))
	}
}

// handleDriverRegister implements spec §4.7's four-step registration:
// resolve to a driverId, verify dispatchability, join driver and
// available-drivers rooms, verify membership before acking.
func (h *Handlers) handleDriverRegister(c *Client, msg InboundMessage) {
	inputID := msg.DriverID
	if inputID == "" {
		inputID = msg.UserID
	}

	driverID, err := h.driver.ResolveDriverID(context.Background(), inputID)
	if err != nil {
		h.sendRegistrationError(c, err)
		return
	}

	rec, ok := h.driver.Get(driverID)
	if !ok || !rec.Dispatchable() {
		h.sendRegistrationError(c, apperrors.DriverNotVerified("driver is not dispatchable"))
		if c.Conn != nil {
			c.Conn.Close()
		}
		return
	}

	c.SetDriverID(driverID)
	_ = h.driver.AddTransport(driverID, transportName)

	okDriverRoom := h.hub.Join(c, busevents.DriverChannel(driverID))
	okAvailableRoom := h.hub.Join(c, busevents.ChannelAvailableDrivers)

	if !okDriverRoom || !okAvailableRoom {
		h.sendRegistrationError(c, apperrors.Internal("room membership verification failed", nil))
		return
	}

	c.Send <- busevents.Event{
		Kind:    busevents.KindDriverRegistration,
		Payload: busevents.DriverRegistrationPayload{DriverID: driverID, Success: true},
	}
}

func (h *Handlers) sendRegistrationError(c *Client, err error) {
	msg := err.Error()
	if appErr, ok := apperrors.As(err); ok {
		msg = appErr.Message
	}
	select {
	case c.Send <- busevents.Event{
		Kind:    busevents.KindDriverRegistration,
		Payload: busevents.DriverRegistrationPayload{Success: false, Error: msg},
	}:
	default:
	}
}

// handleJoinRide adds the socket to a ride room (spec §4.7 required client
// event "join ride room"). Any socket may join; membership is not checked
// against the ride's passenger or assigned driver.
func (h *Handlers) handleJoinRide(c *Client, msg InboundMessage) {
	if msg.RideID == "" {
		return
	}
	h.hub.Join(c, busevents.RideChannel(msg.RideID))
}

// handleLeaveRide removes the socket from a ride room.
func (h *Handlers) handleLeaveRide(c *Client, msg InboundMessage) {
	if msg.RideID == "" {
		return
	}
	h.hub.Leave(c, busevents.RideChannel(msg.RideID))
}

// handleLocationUpdate applies a driver's location update during an
// active ride through RAMEN (and, if the socket names a ride, through
// Fireball's live-tracking fields too) — spec §4.7 required client event
// "location-update (during active ride)".
func (h *Handlers) handleLocationUpdate(c *Client, msg InboundMessage) {
	driverID := c.GetDriverID()
	if driverID == "" {
		return
	}

	if _, err := h.driver.UpdateLocation(driverID, msg.Lat, msg.Lng, msg.Heading, msg.Speed); err != nil {
		logger.Warn("socket location update failed", zap.String("driverId", driverID), zap.Error(err))
		return
	}

	if msg.RideID != "" {
		if _, err := h.ride.UpdateRideLocation(msg.RideID, msg.Lat, msg.Lng, msg.Heading, msg.Speed); err != nil {
			logger.Warn("socket ride location update failed", zap.String("rideId", msg.RideID), zap.Error(err))
		}
	}
}

// HandleDisconnect runs when a socket closes: it leaves every room and,
// if this was the driver's last open socket, removes the transport from
// RAMEN's connected-transport set. isOnline is never toggled here — that
// stays an explicit application-layer decision (spec §4.4, §4.7).
func (h *Handlers) HandleDisconnect(c *Client) {
	driverID := c.GetDriverID()
	h.hub.Unregister(c)
	if driverID == "" {
		return
	}
	if h.hub.DriverSocketCount(driverID) == 0 {
		_ = h.driver.RemoveTransport(driverID, transportName)
	}
}
