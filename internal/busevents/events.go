// Package busevents implements the dispatch core's in-process EventBus
// (component C3, spec §4.3): typed pub/sub routing (channel, event) pairs to
// every registered RealtimeTransport.
package busevents

import "time"

// Kind tags the sum type of events the bus carries.
type Kind string

const (
	KindRideStatusUpdate  Kind = "RideStatusUpdate"
	KindDriverLocation    Kind = "DriverLocation"
	KindNewRideRequest    Kind = "NewRideRequest"
	KindDriverAssigned    Kind = "DriverAssigned"
	KindRideCancelled     Kind = "RideCancelled"
	KindRideChatMessage   Kind = "RideChatMessage"
	KindDriverRegistration Kind = "DriverRegistration"
)

// Event is the envelope published on a channel. Payload is kind-specific and
// left as an opaque value — transports serialize it with the codec package.
type Event struct {
	Kind      Kind        `json:"kind"`
	Channel   string      `json:"channel"`
	Payload   interface{} `json:"payload"`
	EmittedAt time.Time   `json:"emittedAt"`
}

// RideStatusUpdatePayload mirrors a ride-state transition.
type RideStatusUpdatePayload struct {
	RideID    string `json:"rideId"`
	Status    string `json:"status"`
	DriverID  string `json:"driverId,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// DriverLocationPayload mirrors one live tracking update.
type DriverLocationPayload struct {
	DriverID string  `json:"driverId"`
	RideID   string  `json:"rideId,omitempty"`
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
	Heading  float64 `json:"heading,omitempty"`
	Speed    float64 `json:"speed,omitempty"`
}

// NewRideRequestPayload fans out a freshly created ride to eligible drivers.
type NewRideRequestPayload struct {
	RideID     string  `json:"rideId"`
	PickupLat  float64 `json:"pickupLat"`
	PickupLng  float64 `json:"pickupLng"`
	VehicleType string `json:"vehicleType"`
}

// DriverAssignedPayload notifies the passenger side of a successful accept.
type DriverAssignedPayload struct {
	RideID   string `json:"rideId"`
	DriverID string `json:"driverId"`
	Name     string `json:"name,omitempty"`
	Vehicle  string `json:"vehicle,omitempty"`
	Rating   float64 `json:"rating,omitempty"`
}

// RideCancelledPayload mirrors a cancellation.
type RideCancelledPayload struct {
	RideID        string `json:"rideId"`
	CancelledBy   string `json:"cancelledBy"`
	Reason        string `json:"reason,omitempty"`
}

// RideChatMessagePayload carries an in-ride chat message.
type RideChatMessagePayload struct {
	RideID   string `json:"rideId"`
	SenderID string `json:"senderId"`
	Text     string `json:"text"`
}

// DriverRegistrationPayload acknowledges a socket-transport driver-register event.
type DriverRegistrationPayload struct {
	DriverID string `json:"driverId"`
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
}

// Well-known channel names (spec §3).
const (
	ChannelAvailableDrivers = "available-drivers"
	ChannelDriverLocations  = "driver-locations"
)

// RideChannel returns the per-ride channel name.
func RideChannel(rideID string) string { return "ride:" + rideID }

// DriverChannel returns the per-driver channel name.
func DriverChannel(driverID string) string { return "driver:" + driverID }

// H3Channel returns the per-cell channel name.
func H3Channel(h3Index string) string { return "h3:" + h3Index }
