package broker

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/raahi/dispatch-core/internal/busevents"
)

func TestTopicsFor_RideChannel(t *testing.T) {
	assert.Equal(t, []string{"raahi/ride/r1/status"}, topicsFor("ride:r1", busevents.KindRideStatusUpdate))
	assert.Equal(t, []string{"raahi/ride/r1/location"}, topicsFor("ride:r1", busevents.KindDriverLocation))
	assert.Equal(t, []string{"raahi/ride/r1/chat"}, topicsFor("ride:r1", busevents.KindRideChatMessage))
}

func TestTopicsFor_DriverChannel(t *testing.T) {
	assert.Equal(t, []string{"raahi/driver/d1/location"}, topicsFor("driver:d1", busevents.KindDriverLocation))
	assert.Equal(t, []string{"raahi/driver/d1/events"}, topicsFor("driver:d1", busevents.KindDriverAssigned))
}

func TestTopicsFor_H3AndAvailable(t *testing.T) {
	assert.Equal(t, []string{"raahi/h3/abc123/requests"}, topicsFor("h3:abc123", busevents.KindNewRideRequest))
	assert.Equal(t, []string{"raahi/broadcast/rides"}, topicsFor(busevents.ChannelAvailableDrivers, busevents.KindNewRideRequest))
}

func TestQosFor_LocationIsAtMostOnce(t *testing.T) {
	assert.Equal(t, qosLocation, qosFor(busevents.KindDriverLocation))
	assert.Equal(t, qosDefault, qosFor(busevents.KindRideStatusUpdate))
	assert.Equal(t, qosDefault, qosFor(busevents.KindRideCancelled))
}

func TestTransport_GetChannelSizeTracksSubscribers(t *testing.T) {
	tr := &Transport{subscribers: make(map[string]map[string]struct{})}
	tr.TrackSubscriber("ride:r1", "client-a")
	tr.TrackSubscriber("ride:r1", "client-b")

	assert.Equal(t, 2, tr.GetChannelSize("ride:r1"))
	assert.Equal(t, 0, tr.GetChannelSize("ride:other"))
}

func TestTransport_HealthyDefaultsFalseUntilConnected(t *testing.T) {
	tr := &Transport{}
	assert.False(t, tr.IsHealthy())
	tr.healthy.set(true)
	assert.True(t, tr.IsHealthy())
}
