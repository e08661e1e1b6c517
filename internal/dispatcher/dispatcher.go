// Package dispatcher orchestrates RAMEN, Fireball, and the EventBus
// (component C8, spec §4.8): create/accept/start/complete/cancel flows for
// a ride, each grounded on the teacher's internal/rides service flow
// re-expressed over the in-memory authoritative stores instead of a
// request-scoped DB transaction.
package dispatcher

import (
	"time"

	"github.com/raahi/dispatch-core/internal/apperrors"
	"github.com/raahi/dispatch-core/internal/busevents"
	"github.com/raahi/dispatch-core/internal/driverstore"
	"github.com/raahi/dispatch-core/internal/geo"
	"github.com/raahi/dispatch-core/internal/ridestore"
)

// CreateRideInput is the HTTP-layer request shape for a create-ride call.
// Fare is pre-computed by an external pricing collaborator and handed in
// verbatim (spec §4.8) — the dispatcher never computes pricing itself.
type CreateRideInput struct {
	PassengerID   string
	PassengerName string
	PickupLat     float64
	PickupLng     float64
	PickupAddress string
	DropLat       float64
	DropLng       float64
	DropAddress   string
	VehicleType   string
	PaymentMethod string
	Fare          ridestore.FareBreakdown
	Distance      float64
	Duration      float64
}

// Dispatcher is component C8.
type Dispatcher struct {
	rides       *ridestore.Store
	drivers     *driverstore.Store
	bus         *busevents.Bus
	geoIndex    *geo.Index
	maxK        int
	searchRadiusKm float64
	commissionRate float64
	idGen       func() string
}

// Config tunes dispatcher-owned constants (spec §6 "maximum k-ring
// expansion", "platform commission rate").
type Config struct {
	MaxKRingExpansion int
	SearchRadiusKm    float64
	CommissionRate    float64
	GenerateRideID    func() string
}

// New constructs a Dispatcher wired to both stores and the bus.
func New(rides *ridestore.Store, drivers *driverstore.Store, bus *busevents.Bus, geoIndex *geo.Index, cfg Config) *Dispatcher {
	if cfg.SearchRadiusKm <= 0 {
		cfg.SearchRadiusKm = 10
	}
	if cfg.GenerateRideID == nil {
		cfg.GenerateRideID = defaultRideID
	}
	return &Dispatcher{
		rides: rides, drivers: drivers, bus: bus, geoIndex: geoIndex,
		maxK: cfg.MaxKRingExpansion, searchRadiusKm: cfg.SearchRadiusKm,
		commissionRate: cfg.CommissionRate, idGen: cfg.GenerateRideID,
	}
}

// CreateRide runs the create-ride flow (spec §4.8). RideStateStore.CreateRide
// already handles the broad ride-channel and pickup-k-ring/available-drivers
// fan-out; the dispatcher layers the additional targeted per-driver
// publish on top once findNearbyDrivers has run.
func (d *Dispatcher) CreateRide(in CreateRideInput) (ridestore.Record, error) {
	rec, err := d.rides.CreateRide(ridestore.CreateInput{
		RideID:        d.idGen(),
		PassengerID:   in.PassengerID,
		PassengerName: in.PassengerName,
		PickupLat:     in.PickupLat,
		PickupLng:     in.PickupLng,
		PickupAddress: in.PickupAddress,
		DropLat:       in.DropLat,
		DropLng:       in.DropLng,
		DropAddress:   in.DropAddress,
		VehicleType:   in.VehicleType,
		PaymentMethod: in.PaymentMethod,
		Fare:          in.Fare,
		Distance:      in.Distance,
		Duration:      in.Duration,
	})
	if err != nil {
		return ridestore.Record{}, err
	}

	nearby := d.drivers.FindNearbyDrivers(rec.PickupLat, rec.PickupLng, d.searchRadiusKm, rec.VehicleType)
	event := busevents.Event{
		Kind: busevents.KindNewRideRequest,
		Payload: busevents.NewRideRequestPayload{
			RideID: rec.RideID, PickupLat: rec.PickupLat, PickupLng: rec.PickupLng, VehicleType: rec.VehicleType,
		},
	}
	for _, n := range nearby {
		d.bus.Publish(busevents.DriverChannel(n.Record.DriverID), event)
	}

	return rec, nil
}

// AcceptRide runs the accept-ride critical section (spec §4.8): checks the
// driver is dispatchable before delegating to Fireball's atomic
// AssignDriver, which is the sole point where exactly one concurrent
// accept wins.
func (d *Dispatcher) AcceptRide(rideID, driverID string) (ridestore.Record, error) {
	rec, ok := d.drivers.Get(driverID)
	if !ok {
		return ridestore.Record{}, apperrors.NotFound("driver not found: " + driverID)
	}
	if !rec.Dispatchable() {
		return ridestore.Record{}, apperrors.DriverNotVerified("driver is not dispatchable")
	}

	return d.rides.AssignDriver(rideID, driverID, rec.Name, rec.VehicleModel, rec.Rating)
}

// StartRide runs the start-ride flow (spec §4.8): ownership check, OTP
// verification, transition to RIDE_STARTED.
func (d *Dispatcher) StartRide(rideID, driverID, otp string) (ridestore.Record, error) {
	rec, err := d.rides.GetRide(rideID)
	if err != nil {
		return ridestore.Record{}, err
	}
	if rec.DriverID != driverID {
		return ridestore.Record{}, apperrors.NotParticipant("driver is not assigned to this ride")
	}
	if rec.Status != ridestore.StatusDriverArrived {
		return ridestore.Record{}, apperrors.InvalidTransition("ride is not at DRIVER_ARRIVED")
	}

	valid, err := d.rides.VerifyOtp(rideID, otp)
	if err != nil {
		return ridestore.Record{}, err
	}
	if !valid {
		return ridestore.Record{}, apperrors.InvalidOtp("otp does not match")
	}

	return d.rides.TransitionStatus(rideID, ridestore.StatusRideStarted, driverID, "")
}

// EarningsResult is the fare split computed on ride completion (spec
// §4.8).
type EarningsResult struct {
	TotalFare  float64
	Commission float64
	NetAmount  float64
}

// CompleteRide runs the complete-ride flow (spec §4.8): transition, then
// compute the commission split. The durable earnings record is written
// asynchronously by StateSync once the status-change write is applied
// (spec §4.8 "MUST NOT mark completion unless the write has been
// enqueued" — TransitionStatus enqueues unconditionally before returning,
// so by the time this call returns the write is already queued).
func (d *Dispatcher) CompleteRide(rideID, driverID string) (ridestore.Record, EarningsResult, error) {
	rec, err := d.rides.GetRide(rideID)
	if err != nil {
		return ridestore.Record{}, EarningsResult{}, err
	}
	if rec.DriverID != driverID {
		return ridestore.Record{}, EarningsResult{}, apperrors.NotParticipant("driver is not assigned to this ride")
	}

	updated, err := d.rides.TransitionStatus(rideID, ridestore.StatusRideCompleted, driverID, "")
	if err != nil {
		return ridestore.Record{}, EarningsResult{}, err
	}

	commission := updated.Fare.Total * d.commissionRate
	return updated, EarningsResult{
		TotalFare:  updated.Fare.Total,
		Commission: commission,
		NetAmount:  updated.Fare.Total - commission,
	}, nil
}

// CancelRide runs the cancel-ride flow (spec §4.8): any non-terminal
// state transitions to CANCELLED, recording who cancelled and why.
func (d *Dispatcher) CancelRide(rideID, cancelledBy, reason string) (ridestore.Record, error) {
	rec, err := d.rides.GetRide(rideID)
	if err != nil {
		return ridestore.Record{}, err
	}
	if rec.Status.IsTerminal() {
		return ridestore.Record{}, apperrors.InvalidTransition("ride is already in a terminal state")
	}
	return d.rides.TransitionStatus(rideID, ridestore.StatusCancelled, cancelledBy, reason)
}

func defaultRideID() string {
	return "ride_" + time.Now().UTC().Format("20060102T150405.000000000")
}
