package socket

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raahi/dispatch-core/internal/busevents"
	"github.com/raahi/dispatch-core/internal/driverstore"
	"github.com/raahi/dispatch-core/internal/geo"
	"github.com/raahi/dispatch-core/internal/ridestore"
	"github.com/raahi/dispatch-core/internal/storage"
)

func newTestHandlers() (*Handlers, *Hub, *driverstore.Store) {
	idx := geo.NewIndex(9)
	driverQueue := storage.NewQueue(100)
	rideQueue := storage.NewQueue(100)
	bus := busevents.New()
	driverStore := driverstore.New(idx, driverQueue, nil, 2)
	rideStore := ridestore.New(bus, idx, rideQueue, 2)
	hub := NewHub()
	return NewHandlers(hub, bus, driverStore, rideStore), hub, driverStore
}

func dispatchableRecord(id string) driverstore.Record {
	lat, lng := 28.6, 77.2
	return driverstore.Record{
		DriverID: id, UserID: "user-" + id,
		IsOnline: true, IsActive: true, IsVerified: true, OnboardingStatus: "COMPLETED",
		VehicleType: "SEDAN", Lat: &lat, Lng: &lng,
	}
}

func TestHandlers_DriverRegister_SuccessJoinsRooms(t *testing.T) {
	h, hub, driverStore := newTestHandlers()
	driverStore.RegisterDriver(dispatchableRecord("d1"))
	c := newTestClient("s1")
	hub.Register(c)

	h.Dispatch(c, InboundMessage{Type: "driver-register", DriverID: "d1"})

	assert.Equal(t, "d1", c.GetDriverID())
	assert.Equal(t, 1, hub.GetChannelSize(busevents.DriverChannel("d1")))
	assert.Equal(t, 1, hub.GetChannelSize(busevents.ChannelAvailableDrivers))

	select {
	case ev := <-c.Send:
		payload, ok := ev.Payload.(busevents.DriverRegistrationPayload)
		require.True(t, ok)
		assert.True(t, payload.Success)
	default:
		t.Fatal("expected a registration-success event")
	}
}

func TestHandlers_DriverRegister_RejectsNotDispatchable(t *testing.T) {
	h, hub, driverStore := newTestHandlers()
	rec := dispatchableRecord("d2")
	rec.IsVerified = false
	driverStore.RegisterDriver(rec)
	c := newTestClient("s1")
	hub.Register(c)

	h.Dispatch(c, InboundMessage{Type: "driver-register", DriverID: "d2"})

	assert.Empty(t, c.GetDriverID())
	assert.Equal(t, 0, hub.GetChannelSize(busevents.DriverChannel("d2")))
}

func TestHandlers_LocationUpdate_RequiresRegisteredDriver(t *testing.T) {
	h, hub, driverStore := newTestHandlers()
	driverStore.RegisterDriver(dispatchableRecord("d1"))
	c := newTestClient("s1")
	hub.Register(c)

	// Not registered yet: location update is a no-op, not a panic.
	h.Dispatch(c, InboundMessage{Type: "location-update", Lat: 28.61, Lng: 77.21})

	rec, _ := driverStore.Get("d1")
	assert.NotNil(t, rec.Lat)
	assert.Equal(t, 28.6, *rec.Lat) // unchanged, since c never registered as d1
}

func TestHandlers_JoinLeaveRide(t *testing.T) {
	h, hub, _ := newTestHandlers()
	c := newTestClient("s1")
	hub.Register(c)

	h.Dispatch(c, InboundMessage{Type: "join-ride", RideID: "r1"})
	assert.Equal(t, 1, hub.GetChannelSize(busevents.RideChannel("r1")))

	h.Dispatch(c, InboundMessage{Type: "leave-ride", RideID: "r1"})
	assert.Equal(t, 0, hub.GetChannelSize(busevents.RideChannel("r1")))
}

func TestHandlers_Disconnect_RemovesTransportOnlyWhenLastSocket(t *testing.T) {
	h, hub, driverStore := newTestHandlers()
	driverStore.RegisterDriver(dispatchableRecord("d1"))
	c1, c2 := newTestClient("s1"), newTestClient("s2")
	hub.Register(c1)
	hub.Register(c2)

	h.Dispatch(c1, InboundMessage{Type: "driver-register", DriverID: "d1"})
	h.Dispatch(c2, InboundMessage{Type: "driver-register", DriverID: "d1"})

	h.HandleDisconnect(c1)
	rec, _ := driverStore.Get("d1")
	_, stillConnected := rec.ConnectedTransports[transportName]
	assert.True(t, stillConnected)

	h.HandleDisconnect(c2)
	rec, _ = driverStore.Get("d1")
	_, stillConnected = rec.ConnectedTransports[transportName]
	assert.False(t, stillConnected)
}
