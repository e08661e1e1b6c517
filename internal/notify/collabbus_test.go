package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/raahi/dispatch-core/internal/ridestore"
)

func TestCollabBus_NilReceiverMethodsAreNoOps(t *testing.T) {
	var c *CollabBus
	rec := ridestore.Record{RideID: "r1", Status: ridestore.StatusRideCompleted}
	assert.NotPanics(t, func() {
		c.PublishRideStatusChanged(rec)
		c.PublishDriverLocation(DriverLocationEvent{DriverID: "d1"})
		c.Close()
	})
}

func TestCollabBus_ZeroValueMethodsAreNoOps(t *testing.T) {
	c := &CollabBus{}
	rec := ridestore.Record{RideID: "r1", Status: ridestore.StatusRideCompleted}
	assert.NotPanics(t, func() {
		c.PublishRideStatusChanged(rec)
		c.PublishDriverLocation(DriverLocationEvent{DriverID: "d1"})
		c.Close()
	})
}
