package ridestore

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raahi/dispatch-core/internal/apperrors"
	"github.com/raahi/dispatch-core/internal/busevents"
	"github.com/raahi/dispatch-core/internal/geo"
	"github.com/raahi/dispatch-core/internal/storage"
)

func newTestStore() *Store {
	return New(busevents.New(), geo.NewIndex(geo.H3ResolutionMatching), storage.NewQueue(1000), 4)
}

func basicInput(rideID, passengerID string) CreateInput {
	return CreateInput{
		RideID: rideID, PassengerID: passengerID,
		PickupLat: 28.6139, PickupLng: 77.2090,
		DropLat: 28.5355, DropLng: 77.3910,
		VehicleType: "SEDAN", PaymentMethod: "CASH",
		Fare: FareBreakdown{Base: 25, Distance: 62.4, Time: 30, Surge: 1.0, Total: 117.4},
	}
}

func TestCreateRide_GeneratesFourDigitOtp(t *testing.T) {
	s := newTestStore()
	rec, err := s.CreateRide(basicInput("r1", "p1"))
	require.NoError(t, err)
	assert.Equal(t, StatusPending, rec.Status)
	assert.Len(t, rec.RideOtp, 4)
}

func TestCreateRide_RejectsSecondActiveRideForSamePassenger(t *testing.T) {
	s := newTestStore()
	_, err := s.CreateRide(basicInput("r1", "p1"))
	require.NoError(t, err)

	_, err = s.CreateRide(basicInput("r2", "p1"))
	require.Error(t, err)
	ae, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeConflict, ae.Code)
}

func TestAssignDriver_ExactlyOneWinnerUnderConcurrency(t *testing.T) {
	s := newTestStore()
	_, err := s.CreateRide(basicInput("r1", "p1"))
	require.NoError(t, err)

	const drivers = 10
	var wg sync.WaitGroup
	successes := make(chan string, drivers)
	failures := make(chan error, drivers)

	for i := 0; i < drivers; i++ {
		wg.Add(1)
		driverID := string(rune('A' + i))
		go func(id string) {
			defer wg.Done()
			_, err := s.AssignDriver("r1", id, "Driver "+id, "Sedan", 4.8)
			if err != nil {
				failures <- err
				return
			}
			successes <- id
		}(driverID)
	}
	wg.Wait()
	close(successes)
	close(failures)

	winners := 0
	for range successes {
		winners++
	}
	assert.Equal(t, 1, winners)

	rideAlreadyTaken := 0
	for err := range failures {
		ae, ok := apperrors.As(err)
		require.True(t, ok)
		if ae.Code == apperrors.CodeRideAlreadyTaken {
			rideAlreadyTaken++
		}
	}
	assert.Equal(t, drivers-1, rideAlreadyTaken)

	rec, err := s.GetRide("r1")
	require.NoError(t, err)
	assert.Equal(t, StatusDriverAssigned, rec.Status)
	assert.NotEmpty(t, rec.DriverID)
}

func TestVerifyOtp_OnlyValidAtDriverArrived(t *testing.T) {
	s := newTestStore()
	rec, _ := s.CreateRide(basicInput("r1", "p1"))
	otp := rec.RideOtp

	valid, err := s.VerifyOtp("r1", otp)
	require.NoError(t, err)
	assert.False(t, valid, "not yet DRIVER_ARRIVED")

	_, err = s.AssignDriver("r1", "d1", "D", "Sedan", 4.5)
	require.NoError(t, err)
	_, err = s.TransitionStatus("r1", StatusConfirmed, "d1", "")
	require.NoError(t, err)
	_, err = s.TransitionStatus("r1", StatusDriverArrived, "d1", "")
	require.NoError(t, err)

	valid, err = s.VerifyOtp("r1", "0000")
	require.NoError(t, err)
	assert.False(t, valid)

	valid, err = s.VerifyOtp("r1", otp)
	require.NoError(t, err)
	assert.True(t, valid)
}

func TestTransitionStatus_RejectsInvalidEdge(t *testing.T) {
	s := newTestStore()
	s.CreateRide(basicInput("r1", "p1"))

	_, err := s.TransitionStatus("r1", StatusRideStarted, "p1", "")
	require.Error(t, err)
	ae, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeInvalidTransition, ae.Code)

	rec, err := s.GetRide("r1")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, rec.Status)
}

func TestTransitionStatus_ToTerminalReleasesPassengerSlot(t *testing.T) {
	s := newTestStore()
	s.CreateRide(basicInput("r1", "p1"))
	_, err := s.TransitionStatus("r1", StatusCancelled, "p1", "changed my mind")
	require.NoError(t, err)

	_, stillActive := s.GetPassengerActiveRide("p1")
	assert.False(t, stillActive)

	_, err = s.CreateRide(basicInput("r2", "p1"))
	assert.NoError(t, err, "passenger should be able to request again after cancellation")
}

func TestSweepExpired_OnlyRemovesDirtyFalseTerminalRidesPastTTL(t *testing.T) {
	s := newTestStore()
	s.CreateRide(basicInput("r1", "p1"))
	s.TransitionStatus("r1", StatusCancelled, "p1", "")

	// Still dirty: not removed even though terminal.
	removed := s.SweepExpired(0)
	assert.Equal(t, 0, removed)

	s.MarkSynced("r1", 2)
	removed = s.SweepExpired(0)
	assert.Equal(t, 1, removed)

	_, err := s.GetRide("r1")
	assert.Error(t, err)
}

func TestSweepExpired_RespectsTTLWindow(t *testing.T) {
	s := newTestStore()
	s.CreateRide(basicInput("r1", "p1"))
	s.TransitionStatus("r1", StatusCancelled, "p1", "")
	s.MarkSynced("r1", 2)

	removed := s.SweepExpired(time.Hour)
	assert.Equal(t, 0, removed, "cancelled moments ago, ttl not elapsed")
}

func TestHydrateRide_RestoresSecondaryIndices(t *testing.T) {
	s := newTestStore()
	now := time.Now()
	s.HydrateRide(Record{
		RideID: "r1", PassengerID: "p1", DriverID: "d1",
		Status: StatusDriverArrived, CreatedAt: now,
	})

	rec, err := s.GetRide("r1")
	require.NoError(t, err)
	assert.False(t, rec.Dirty)

	driverRide, ok := s.GetDriverActiveRide("d1")
	require.True(t, ok)
	assert.Equal(t, "r1", driverRide.RideID)

	_, isPending := s.GetPassengerActiveRide("p1")
	assert.True(t, isPending)
}
