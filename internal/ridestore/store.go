package ridestore

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/raahi/dispatch-core/internal/apperrors"
	"github.com/raahi/dispatch-core/internal/busevents"
	"github.com/raahi/dispatch-core/internal/geo"
	"github.com/raahi/dispatch-core/internal/storage"
)

type rideEntry struct {
	mu     sync.Mutex
	record Record
}

// CreateInput is the caller-supplied shape for CreateRide; fare is computed
// by an external pricing collaborator and handed in (spec §4.8).
type CreateInput struct {
	RideID        string
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
	Fare          FareBreakdown
	Distance      float64
	Duration      float64
}

// Store is Fireball: the authoritative, in-memory ride state machine.
type Store struct {
	mu      sync.RWMutex
	rides   map[string]*rideEntry
	passengerRides map[string]string
	driverRides    map[string]string
	pendingRides   map[string]struct{}

	passengerLocksMu sync.Mutex
	passengerLocks   map[string]*sync.Mutex

	bus      *busevents.Bus
	geoIndex *geo.Index
	queue    *storage.Queue
	maxK     int
}

// New constructs an empty Fireball store.
func New(bus *busevents.Bus, geoIndex *geo.Index, queue *storage.Queue, maxKRingExpansion int) *Store {
	return &Store{
		rides:          make(map[string]*rideEntry),
		passengerRides: make(map[string]string),
		driverRides:    make(map[string]string),
		pendingRides:   make(map[string]struct{}),
		passengerLocks: make(map[string]*sync.Mutex),
		bus:            bus,
		geoIndex:       geoIndex,
		queue:          queue,
		maxK:           maxKRingExpansion,
	}
}

func (s *Store) passengerLock(passengerID string) *sync.Mutex {
	s.passengerLocksMu.Lock()
	defer s.passengerLocksMu.Unlock()
	lock, ok := s.passengerLocks[passengerID]
	if !ok {
		lock = &sync.Mutex{}
		s.passengerLocks[passengerID] = lock
	}
	return lock
}

// CreateRide inserts a new ride, asserting the passenger has no active ride
// under the same critical section that performs the insert (spec §9 open
// question decision, see DESIGN.md). It publishes the PENDING status event
// and a broad NewRideRequest fan-out across the pickup's k-ring and
// available-drivers (spec §4.5); the dispatcher layers a targeted per-driver
// publish on top after running findNearbyDrivers (spec §4.8).
func (s *Store) CreateRide(in CreateInput) (Record, error) {
	lock := s.passengerLock(in.PassengerID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.RLock()
	_, hasActive := s.passengerRides[in.PassengerID]
	s.mu.RUnlock()
	if hasActive {
		return Record{}, apperrors.Conflict("passenger already has an active ride")
	}

	now := time.Now()
	rec := Record{
		RideID:        in.RideID,
		PassengerID:   in.PassengerID,
		PassengerName: in.PassengerName,
		PickupLat:     in.PickupLat,
		PickupLng:     in.PickupLng,
		PickupAddress: in.PickupAddress,
		DropLat:       in.DropLat,
		DropLng:       in.DropLng,
		DropAddress:   in.DropAddress,
		PickupH3:      s.geoIndex.Encode(in.PickupLat, in.PickupLng),
		Fare:          in.Fare,
		Distance:      in.Distance,
		Duration:      in.Duration,
		RideOtp:       randomOtp(),
		PaymentMethod: in.PaymentMethod,
		VehicleType:   in.VehicleType,
		Status:        StatusPending,
		CreatedAt:     now,
		Dirty:         true,
		Version:       1,
	}

	s.mu.Lock()
	s.rides[rec.RideID] = &rideEntry{record: rec}
	s.passengerRides[in.PassengerID] = rec.RideID
	s.pendingRides[rec.RideID] = struct{}{}
	s.mu.Unlock()

	s.queue.Enqueue(storage.PendingWrite{EntityID: rec.RideID, Operation: storage.OpCreate, Payload: rec})

	s.bus.Publish(busevents.RideChannel(rec.RideID), busevents.Event{
		Kind: busevents.KindRideStatusUpdate,
		Payload: busevents.RideStatusUpdatePayload{RideID: rec.RideID, Status: string(StatusPending)},
	})

	cells := s.geoIndex.KRing(rec.PickupH3, s.maxK)
	newRideEvent := busevents.Event{
		Kind: busevents.KindNewRideRequest,
		Payload: busevents.NewRideRequestPayload{
			RideID: rec.RideID, PickupLat: rec.PickupLat, PickupLng: rec.PickupLng, VehicleType: rec.VehicleType,
		},
	}
	for _, cell := range cells {
		s.bus.Publish(busevents.H3Channel(cell), newRideEvent)
	}
	s.bus.Publish(busevents.ChannelAvailableDrivers, newRideEvent)

	return rec, nil
}

// TransitionStatus validates and applies a state-machine edge, serialising
// all transitions of a given ride through one critical section so observers
// see the total order the spec's ordering guarantee requires (spec §5).
func (s *Store) TransitionStatus(rideID string, newStatus Status, triggeredBy string, reason string) (Record, error) {
	s.mu.RLock()
	entry, ok := s.rides[rideID]
	s.mu.RUnlock()
	if !ok {
		return Record{}, apperrors.NotFound("ride not found: " + rideID)
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	current := entry.record.Status
	if !CanTransition(current, newStatus) {
		return Record{}, apperrors.InvalidTransition("cannot transition from " + string(current) + " to " + string(newStatus))
	}

	return s.applyTransitionLocked(entry, rideID, newStatus, triggeredBy, reason), nil
}

// applyTransitionLocked performs the state-machine edge's side effects
// (timestamps, secondary indices, bus fan-out, durable-write enqueue).
// Callers must already hold entry.mu and must have validated the edge with
// CanTransition — this lets AssignDriver fold its driverId CAS and the
// DRIVER_ASSIGNED transition into a single critical section (spec §4.8,
// §8 invariant 2).
func (s *Store) applyTransitionLocked(entry *rideEntry, rideID string, newStatus Status, triggeredBy string, reason string) Record {
	current := entry.record.Status
	now := time.Now()
	rec := entry.record
	rec.Status = newStatus
	rec.Version++
	rec.Dirty = true

	switch newStatus {
	case StatusDriverAssigned:
		rec.AssignedAt = &now
	case StatusConfirmed:
		rec.ConfirmedAt = &now
	case StatusDriverArrived:
		rec.ArrivedAt = &now
	case StatusRideStarted:
		rec.StartedAt = &now
	case StatusRideCompleted:
		rec.CompletedAt = &now
	case StatusCancelled:
		rec.CancelledAt = &now
		rec.CancelledBy = triggeredBy
		rec.CancellationReason = reason
	}

	s.mu.Lock()
	if current == StatusPending {
		delete(s.pendingRides, rideID)
	}
	if newStatus == StatusDriverAssigned {
		s.driverRides[rec.DriverID] = rideID
	}
	if newStatus.IsTerminal() {
		if rec.DriverID != "" {
			delete(s.driverRides, rec.DriverID)
		}
		delete(s.passengerRides, rec.PassengerID)
	}
	s.mu.Unlock()

	entry.record = rec

	s.bus.Publish(busevents.RideChannel(rideID), busevents.Event{
		Kind: busevents.KindRideStatusUpdate,
		Payload: busevents.RideStatusUpdatePayload{
			RideID: rideID, Status: string(newStatus), DriverID: rec.DriverID, Reason: reason,
		},
	})

	switch newStatus {
	case StatusDriverAssigned:
		s.bus.Publish(busevents.RideChannel(rideID), busevents.Event{
			Kind: busevents.KindDriverAssigned,
			Payload: busevents.DriverAssignedPayload{
				RideID: rideID, DriverID: rec.DriverID, Name: rec.DriverName, Vehicle: rec.DriverVehicle, Rating: rec.DriverRating,
			},
		})
		s.bus.Publish(busevents.ChannelAvailableDrivers, busevents.Event{
			Kind: busevents.KindDriverAssigned,
			Payload: busevents.DriverAssignedPayload{RideID: rideID, DriverID: rec.DriverID},
		})
	case StatusCancelled:
		s.bus.Publish(busevents.RideChannel(rideID), busevents.Event{
			Kind:    busevents.KindRideCancelled,
			Payload: busevents.RideCancelledPayload{RideID: rideID, CancelledBy: triggeredBy, Reason: reason},
		})
	}

	s.queue.Enqueue(storage.PendingWrite{EntityID: rideID, Operation: storage.OpStatusChange, Payload: rec})

	return rec.clone()
}

// UpdateRideLocation overwrites live tracking fields and emits a
// DriverLocation event. Per-update location is never persisted (spec
// §4.5) — the driver's location system of record is RAMEN, not Fireball.
func (s *Store) UpdateRideLocation(rideID string, lat, lng float64, heading, speed *float64) (Record, error) {
	s.mu.RLock()
	entry, ok := s.rides[rideID]
	s.mu.RUnlock()
	if !ok {
		return Record{}, apperrors.NotFound("ride not found: " + rideID)
	}

	entry.mu.Lock()
	entry.record.DriverLat, entry.record.DriverLng = &lat, &lng
	entry.record.DriverHeading, entry.record.DriverSpeed = heading, speed
	entry.record.Version++
	rec := entry.record.clone()
	entry.mu.Unlock()

	s.bus.Publish(busevents.RideChannel(rideID), busevents.Event{
		Kind: busevents.KindDriverLocation,
		Payload: busevents.DriverLocationPayload{
			DriverID: rec.DriverID, RideID: rideID, Lat: lat, Lng: lng,
			Heading: derefOr(heading, 0), Speed: derefOr(speed, 0),
		},
	})

	return rec, nil
}

// VerifyOtp is a pure read: valid iff the ride is DRIVER_ARRIVED and the
// supplied otp matches the stored one (spec §4.5).
func (s *Store) VerifyOtp(rideID, otp string) (bool, error) {
	rec, err := s.GetRide(rideID)
	if err != nil {
		return false, err
	}
	return rec.Status == StatusDriverArrived && rec.RideOtp == otp, nil
}

// GetRide returns a snapshot of one ride record.
func (s *Store) GetRide(rideID string) (Record, error) {
	s.mu.RLock()
	entry, ok := s.rides[rideID]
	s.mu.RUnlock()
	if !ok {
		return Record{}, apperrors.NotFound("ride not found: " + rideID)
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.record.clone(), nil
}

// GetPassengerActiveRide returns the passenger's current ride, if any.
func (s *Store) GetPassengerActiveRide(passengerID string) (Record, bool) {
	s.mu.RLock()
	rideID, ok := s.passengerRides[passengerID]
	s.mu.RUnlock()
	if !ok {
		return Record{}, false
	}
	rec, err := s.GetRide(rideID)
	return rec, err == nil
}

// GetDriverActiveRide returns the driver's current ride, if any.
func (s *Store) GetDriverActiveRide(driverID string) (Record, bool) {
	s.mu.RLock()
	rideID, ok := s.driverRides[driverID]
	s.mu.RUnlock()
	if !ok {
		return Record{}, false
	}
	rec, err := s.GetRide(rideID)
	return rec, err == nil
}

// GetPendingRides returns every ride still awaiting assignment.
func (s *Store) GetPendingRides() []Record {
	s.mu.RLock()
	ids := make([]string, 0, len(s.pendingRides))
	for id := range s.pendingRides {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	out := make([]Record, 0, len(ids))
	for _, id := range ids {
		if rec, err := s.GetRide(id); err == nil {
			out = append(out, rec)
		}
	}
	return out
}

// GetActiveRides returns every ride not in a terminal state.
func (s *Store) GetActiveRides() []Record {
	s.mu.RLock()
	ids := make([]string, 0, len(s.rides))
	for id := range s.rides {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	out := make([]Record, 0, len(ids))
	for _, id := range ids {
		rec, err := s.GetRide(id)
		if err == nil && !rec.Status.IsTerminal() {
			out = append(out, rec)
		}
	}
	return out
}

// MarkSynced clears the dirty flag after a successful flush, guarding
// against clobbering a write that happened after the flush started.
func (s *Store) MarkSynced(rideID string, flushedVersion uint64) {
	s.mu.RLock()
	entry, ok := s.rides[rideID]
	s.mu.RUnlock()
	if !ok {
		return
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.record.Version == flushedVersion {
		entry.record.Dirty = false
		entry.record.LastSyncedAt = time.Now()
	}
}

// HydrateRide inserts a ride loaded from the durable store directly as
// not-dirty, restoring secondary indices (spec §4.6 step 2).
func (s *Store) HydrateRide(rec Record) {
	rec.Dirty = false
	rec.LastSyncedAt = time.Now()
	if rec.Version == 0 {
		rec.Version = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.rides[rec.RideID] = &rideEntry{record: rec}
	s.passengerRides[rec.PassengerID] = rec.RideID
	if rec.DriverID != "" {
		s.driverRides[rec.DriverID] = rec.RideID
	}
	if rec.Status == StatusPending {
		s.pendingRides[rec.RideID] = struct{}{}
	}
}

// AssignDriver is the ride-side half of the accept-ride critical section
// (spec §4.8): it transitions PENDING -> DRIVER_ASSIGNED only if driverId is
// still unset, returning RIDE_ALREADY_TAKEN naming the existing assignee
// otherwise. The driverId CAS and the status transition run under one
// acquisition of entry.mu — entry.mu is never released between the check and
// the transition — so exactly one concurrent accept succeeds and the loser
// always learns the winner's driverId (spec §8 invariant 2).
func (s *Store) AssignDriver(rideID, driverID, driverName, driverVehicle string, driverRating float64) (Record, error) {
	s.mu.RLock()
	entry, ok := s.rides[rideID]
	s.mu.RUnlock()
	if !ok {
		return Record{}, apperrors.NotFound("ride not found: " + rideID)
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.record.Status != StatusPending || entry.record.DriverID != "" {
		if entry.record.DriverID != "" {
			return Record{}, apperrors.RideAlreadyTaken("ride already assigned to " + entry.record.DriverID)
		}
		return Record{}, apperrors.InvalidTransition("ride is not pending")
	}

	if !CanTransition(entry.record.Status, StatusDriverAssigned) {
		return Record{}, apperrors.InvalidTransition("cannot transition from " + string(entry.record.Status) + " to " + string(StatusDriverAssigned))
	}

	entry.record.DriverID = driverID
	entry.record.DriverName = driverName
	entry.record.DriverVehicle = driverVehicle
	entry.record.DriverRating = driverRating

	return s.applyTransitionLocked(entry, rideID, StatusDriverAssigned, driverID, ""), nil
}

func randomOtp() string {
	n := rand.IntN(10000)
	digits := [4]byte{}
	for i := 3; i >= 0; i-- {
		digits[i] = byte('0' + n%10)
		n /= 10
	}
	return string(digits[:])
}

func derefOr(v *float64, fallback float64) float64 {
	if v == nil {
		return fallback
	}
	return *v
}
