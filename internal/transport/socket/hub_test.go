package socket

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raahi/dispatch-core/internal/busevents"
)

func newTestClient(id string) *Client {
	return &Client{ID: id, Send: make(chan busevents.Event, 8), rooms: make(map[string]struct{})}
}

func TestHub_JoinReportsMembership(t *testing.T) {
	h := NewHub()
	c := newTestClient("s1")
	h.Register(c)

	ok := h.Join(c, "ride:r1")

	assert.True(t, ok)
	assert.Equal(t, 1, h.GetChannelSize("ride:r1"))
}

func TestHub_DeliverFansOutToRoom(t *testing.T) {
	h := NewHub()
	c1, c2 := newTestClient("s1"), newTestClient("s2")
	h.Register(c1)
	h.Register(c2)
	h.Join(c1, "ride:r1")
	h.Join(c2, "ride:r1")

	h.Deliver("ride:r1", busevents.Event{Kind: busevents.KindRideStatusUpdate})

	for _, c := range []*Client{c1, c2} {
		select {
		case <-c.Send:
		default:
			t.Fatalf("expected client %s to receive an event", c.ID)
		}
	}
}

func TestHub_UnregisterRemovesFromAllRooms(t *testing.T) {
	h := NewHub()
	c := newTestClient("s1")
	h.Register(c)
	h.Join(c, "ride:r1")
	h.Join(c, "driver:d1")

	h.Unregister(c)

	assert.Equal(t, 0, h.GetChannelSize("ride:r1"))
	assert.Equal(t, 0, h.GetChannelSize("driver:d1"))
}

func TestHub_LeaveRemovesOnlyThatRoom(t *testing.T) {
	h := NewHub()
	c := newTestClient("s1")
	h.Register(c)
	h.Join(c, "ride:r1")
	h.Join(c, "driver:d1")

	h.Leave(c, "ride:r1")

	assert.Equal(t, 0, h.GetChannelSize("ride:r1"))
	assert.Equal(t, 1, h.GetChannelSize("driver:d1"))
}

func TestHub_DriverSocketCountReflectsMultiDevice(t *testing.T) {
	h := NewHub()
	c1, c2 := newTestClient("s1"), newTestClient("s2")
	h.Register(c1)
	h.Register(c2)
	h.Join(c1, "driver:d1")
	h.Join(c2, "driver:d1")

	require.Equal(t, 2, h.DriverSocketCount("d1"))

	h.Unregister(c1)
	assert.Equal(t, 1, h.DriverSocketCount("d1"))
}

func TestHub_FullSendBufferDropsClientInsteadOfBlocking(t *testing.T) {
	h := NewHub()
	c := newTestClient("s1")
	c.Send = make(chan busevents.Event) // unbuffered, so every Deliver must hit the default case
	h.Register(c)
	h.Join(c, "ride:r1")

	h.Deliver("ride:r1", busevents.Event{Kind: busevents.KindRideStatusUpdate})

	assert.Equal(t, 0, h.GetChannelSize("ride:r1"))
}
