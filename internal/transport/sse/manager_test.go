package sse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raahi/dispatch-core/internal/busevents"
)

func TestManager_DeliverFansOutToSubscribers(t *testing.T) {
	m := NewManager()
	c := m.Connect("client-1", "ride:r1")
	defer m.Disconnect("client-1")

	m.Deliver("ride:r1", busevents.Event{Kind: busevents.KindRideStatusUpdate, Payload: busevents.RideStatusUpdatePayload{RideID: "r1", Status: "PENDING"}})

	select {
	case frame := <-c.Frames:
		assert.Equal(t, "RideStatusUpdate", frame.Event)
	case <-time.After(time.Second):
		t.Fatal("expected a frame")
	}
}

func TestManager_DeliverIgnoresOtherChannels(t *testing.T) {
	m := NewManager()
	c := m.Connect("client-1", "ride:r1")
	defer m.Disconnect("client-1")

	m.Deliver("ride:other", busevents.Event{Kind: busevents.KindRideStatusUpdate})

	select {
	case <-c.Frames:
		t.Fatal("did not expect a frame for an unsubscribed channel")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestManager_GetChannelSize(t *testing.T) {
	m := NewManager()
	m.Connect("a", "available-drivers")
	m.Connect("b", "available-drivers")
	defer m.Disconnect("a")
	defer m.Disconnect("b")

	assert.Equal(t, 2, m.GetChannelSize("available-drivers"))
}

func TestManager_DisconnectRemovesFromAllChannels(t *testing.T) {
	m := NewManager()
	m.Connect("a", "ride:r1", "driver:d1")
	m.Disconnect("a")

	assert.Equal(t, 0, m.GetChannelSize("ride:r1"))
	assert.Equal(t, 0, m.GetChannelSize("driver:d1"))
}

func TestManager_SlowClientDroppedNotBlocked(t *testing.T) {
	m := NewManager()
	c := m.Connect("slow", "h3:cell1")

	for i := 0; i < 100; i++ {
		m.Deliver("h3:cell1", busevents.Event{Kind: busevents.KindDriverLocation})
	}

	require.Eventually(t, func() bool { return c.isClosed() }, time.Second, 10*time.Millisecond)
}

func TestManager_RebindH3Subscription(t *testing.T) {
	m := NewManager()
	m.Connect("d1")
	m.RebindH3Subscription("d1", nil, []string{"cellA"})
	assert.Equal(t, 1, m.GetChannelSize("h3:cellA"))

	m.RebindH3Subscription("d1", []string{"cellA"}, []string{"cellB"})
	assert.Equal(t, 0, m.GetChannelSize("h3:cellA"))
	assert.Equal(t, 1, m.GetChannelSize("h3:cellB"))
}

func TestManager_IsHealthyAlwaysTrue(t *testing.T) {
	m := NewManager()
	assert.True(t, m.IsHealthy())
}
