package dispatcher

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raahi/dispatch-core/internal/apperrors"
	"github.com/raahi/dispatch-core/internal/busevents"
	"github.com/raahi/dispatch-core/internal/driverstore"
	"github.com/raahi/dispatch-core/internal/geo"
	"github.com/raahi/dispatch-core/internal/ridestore"
	"github.com/raahi/dispatch-core/internal/storage"
)

func newTestDispatcher(t *testing.T) (*Dispatcher, *driverstore.Store, *ridestore.Store) {
	t.Helper()
	idx := geo.NewIndex(9)
	bus := busevents.New()
	driverStore := driverstore.New(idx, storage.NewQueue(100), nil, 2)
	rideStore := ridestore.New(bus, idx, storage.NewQueue(100), 2)

	n := 0
	d := New(rideStore, driverStore, bus, idx, Config{
		MaxKRingExpansion: 2, SearchRadiusKm: 50, CommissionRate: 0.2,
		GenerateRideID: func() string { n++; return "ride-test" },
	})
	return d, driverStore, rideStore
}

func dispatchableDriver(id string) driverstore.Record {
	lat, lng := 28.6139, 77.2090
	return driverstore.Record{
		DriverID: id, UserID: "user-" + id, Name: "Driver " + id,
		VehicleModel: "Swift", VehicleType: "SEDAN", Rating: 4.8,
		IsOnline: true, IsActive: true, IsVerified: true, OnboardingStatus: "COMPLETED",
		Lat: &lat, Lng: &lng,
	}
}

func createInput() CreateRideInput {
	return CreateRideInput{
		PassengerID: "p1", PassengerName: "Passenger",
		PickupLat: 28.6139, PickupLng: 77.2090, PickupAddress: "Pickup",
		DropLat: 28.5355, DropLng: 77.3910, DropAddress: "Drop",
		VehicleType: "SEDAN", PaymentMethod: "CASH",
		Fare: ridestore.FareBreakdown{Base: 25, Distance: 62.4, Time: 30, Surge: 1.0, Total: 117.4},
		Distance: 29.5, Duration: 45,
	}
}

func TestCreateRide_ReturnsPendingRideWithOtp(t *testing.T) {
	d, driverStore, _ := newTestDispatcher(t)
	driverStore.RegisterDriver(dispatchableDriver("A"))
	driverStore.RegisterDriver(dispatchableDriver("B"))

	rec, err := d.CreateRide(createInput())

	require.NoError(t, err)
	assert.Equal(t, ridestore.StatusPending, rec.Status)
	assert.NotEmpty(t, rec.RideOtp)
	assert.Len(t, rec.RideOtp, 4)
}

func TestAcceptRide_RejectsNonDispatchableDriver(t *testing.T) {
	d, driverStore, rideStore := newTestDispatcher(t)
	notVerified := dispatchableDriver("C")
	notVerified.IsVerified = false
	driverStore.RegisterDriver(notVerified)

	rec, _ := rideStore.CreateRide(ridestore.CreateInput{RideID: "r1", PassengerID: "p1", VehicleType: "SEDAN"})

	_, err := d.AcceptRide(rec.RideID, "C")

	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeDriverNotVerified, appErr.Code)
}

func TestAcceptRide_ExactlyOneWinnerUnderConcurrency(t *testing.T) {
	d, driverStore, rideStore := newTestDispatcher(t)
	for _, id := range []string{"A", "B", "C"} {
		driverStore.RegisterDriver(dispatchableDriver(id))
	}
	rec, _ := rideStore.CreateRide(ridestore.CreateInput{RideID: "r1", PassengerID: "p1", VehicleType: "SEDAN"})

	var wg sync.WaitGroup
	results := make(chan error, 3)
	for _, id := range []string{"A", "B", "C"} {
		wg.Add(1)
		go func(driverID string) {
			defer wg.Done()
			_, err := d.AcceptRide(rec.RideID, driverID)
			results <- err
		}(id)
	}
	wg.Wait()
	close(results)

	successes, taken := 0, 0
	for err := range results {
		if err == nil {
			successes++
			continue
		}
		appErr, ok := apperrors.As(err)
		require.True(t, ok)
		assert.Equal(t, apperrors.CodeRideAlreadyTaken, appErr.Code)
		taken++
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 2, taken)
}

func TestStartRide_RejectsWrongOtp(t *testing.T) {
	d, driverStore, rideStore := newTestDispatcher(t)
	driverStore.RegisterDriver(dispatchableDriver("A"))
	rec, _ := rideStore.CreateRide(ridestore.CreateInput{RideID: "r1", PassengerID: "p1", VehicleType: "SEDAN"})
	rec, err := d.AcceptRide(rec.RideID, "A")
	require.NoError(t, err)
	rec, err = rideStore.TransitionStatus(rec.RideID, ridestore.StatusConfirmed, "A", "")
	require.NoError(t, err)
	rec, err = rideStore.TransitionStatus(rec.RideID, ridestore.StatusDriverArrived, "A", "")
	require.NoError(t, err)

	_, err = d.StartRide(rec.RideID, "A", "0000")

	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeInvalidOtp, appErr.Code)

	unchanged, _ := rideStore.GetRide(rec.RideID)
	assert.Equal(t, ridestore.StatusDriverArrived, unchanged.Status)
}

func TestStartRide_SucceedsWithCorrectOtp(t *testing.T) {
	d, driverStore, rideStore := newTestDispatcher(t)
	driverStore.RegisterDriver(dispatchableDriver("A"))
	rec, _ := rideStore.CreateRide(ridestore.CreateInput{RideID: "r1", PassengerID: "p1", VehicleType: "SEDAN"})
	rec, _ = d.AcceptRide(rec.RideID, "A")
	rec, _ = rideStore.TransitionStatus(rec.RideID, ridestore.StatusConfirmed, "A", "")
	rec, _ = rideStore.TransitionStatus(rec.RideID, ridestore.StatusDriverArrived, "A", "")

	started, err := d.StartRide(rec.RideID, "A", rec.RideOtp)

	require.NoError(t, err)
	assert.Equal(t, ridestore.StatusRideStarted, started.Status)
}

func TestCompleteRide_ComputesCommissionSplit(t *testing.T) {
	d, driverStore, rideStore := newTestDispatcher(t)
	driverStore.RegisterDriver(dispatchableDriver("A"))
	rec, _ := rideStore.CreateRide(ridestore.CreateInput{
		RideID: "r1", PassengerID: "p1", VehicleType: "SEDAN",
		Fare: ridestore.FareBreakdown{Total: 117.4},
	})
	rec, _ = d.AcceptRide(rec.RideID, "A")
	rec, _ = rideStore.TransitionStatus(rec.RideID, ridestore.StatusConfirmed, "A", "")
	rec, _ = rideStore.TransitionStatus(rec.RideID, ridestore.StatusDriverArrived, "A", "")
	rec, _ = d.StartRide(rec.RideID, "A", rec.RideOtp)
	require.Equal(t, ridestore.StatusRideStarted, rec.Status)

	_, earnings, err := d.CompleteRide(rec.RideID, "A")

	require.NoError(t, err)
	assert.InDelta(t, 23.48, earnings.Commission, 0.001)
	assert.InDelta(t, 93.92, earnings.NetAmount, 0.001)
}

func TestCompleteRide_RejectsWrongDriver(t *testing.T) {
	d, driverStore, rideStore := newTestDispatcher(t)
	driverStore.RegisterDriver(dispatchableDriver("A"))
	rec, _ := rideStore.CreateRide(ridestore.CreateInput{RideID: "r1", PassengerID: "p1", VehicleType: "SEDAN"})
	rec, _ = d.AcceptRide(rec.RideID, "A")

	_, _, err := d.CompleteRide(rec.RideID, "someone-else")

	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeNotParticipant, appErr.Code)
}

func TestCancelRide_RejectsAlreadyTerminal(t *testing.T) {
	d, _, rideStore := newTestDispatcher(t)
	rec, _ := rideStore.CreateRide(ridestore.CreateInput{RideID: "r1", PassengerID: "p1", VehicleType: "SEDAN"})
	_, err := rideStore.TransitionStatus(rec.RideID, ridestore.StatusCancelled, "passenger", "changed my mind")
	require.NoError(t, err)

	_, err = d.CancelRide(rec.RideID, "passenger", "again")

	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeInvalidTransition, appErr.Code)
}
