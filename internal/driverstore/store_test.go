package driverstore

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raahi/dispatch-core/internal/geo"
	"github.com/raahi/dispatch-core/internal/storage"
)

func newTestStore() *Store {
	return New(geo.NewIndex(geo.H3ResolutionMatching), storage.NewQueue(1000), nil, 6)
}

func dispatchableDriver(id string, lat, lng float64, vehicleType string) Record {
	return Record{
		DriverID: id, UserID: "user-" + id,
		VehicleType: vehicleType,
		IsOnline: true, IsActive: true, IsVerified: true, OnboardingStatus: "COMPLETED",
		Lat: &lat, Lng: &lng,
	}
}

func TestRegisterDriver_NeverSetsOnline(t *testing.T) {
	s := newTestStore()
	lat, lng := 28.6139, 77.2090
	s.RegisterDriver(Record{DriverID: "d1", UserID: "u1", Lat: &lat, Lng: &lng})

	rec, ok := s.Get("d1")
	require.True(t, ok)
	assert.False(t, rec.IsOnline)
}

func TestFindNearbyDrivers_ExcludesOffline(t *testing.T) {
	s := newTestStore()
	d := dispatchableDriver("d1", 28.6139, 77.2090, "SEDAN")
	s.RegisterDriver(d)
	require.NoError(t, s.SetOnlineStatus("d1", false))

	results := s.FindNearbyDrivers(28.6139, 77.2090, 5, "")
	assert.Empty(t, results)
}

func TestFindNearbyDrivers_SortedByDistanceThenID(t *testing.T) {
	s := newTestStore()
	s.RegisterDriver(dispatchableDriver("b", 28.6140, 77.2091, "SEDAN"))
	s.RegisterDriver(dispatchableDriver("a", 28.6140, 77.2091, "SEDAN"))

	results := s.FindNearbyDrivers(28.6139, 77.2090, 5, "")
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].Record.DriverID)
	assert.Equal(t, "b", results[1].Record.DriverID)
}

func TestUpdateLocation_MovesCellsAtomically(t *testing.T) {
	s := newTestStore()
	s.RegisterDriver(dispatchableDriver("d1", 28.6139, 77.2090, "SEDAN"))

	upd, err := s.UpdateLocation("d1", 28.6340, 77.2310, nil, nil)
	require.NoError(t, err)
	assert.True(t, upd.H3Changed)

	// A ride pickup in the new cell's neighbourhood should find the driver.
	results := s.FindNearbyDrivers(28.6340, 77.2310, 2, "")
	require.Len(t, results, 1)
	assert.Equal(t, "d1", results[0].Record.DriverID)
}

func TestUpdateLocation_UnknownDriverReturnsNotFound(t *testing.T) {
	s := newTestStore()
	_, err := s.UpdateLocation("ghost", 1, 2, nil, nil)
	require.Error(t, err)
}

func TestSetOnlineStatus_DoesNotRemoveFromCellIndex(t *testing.T) {
	s := newTestStore()
	s.RegisterDriver(dispatchableDriver("d1", 28.6139, 77.2090, "SEDAN"))
	require.NoError(t, s.SetOnlineStatus("d1", false))
	require.NoError(t, s.SetOnlineStatus("d1", true))

	results := s.FindNearbyDrivers(28.6139, 77.2090, 5, "")
	require.Len(t, results, 1)
}

func TestResolveDriverID_AcceptsDriverIDOrUserID(t *testing.T) {
	s := newTestStore()
	s.RegisterDriver(Record{DriverID: "d1", UserID: "u1"})

	byDriver, err := s.ResolveDriverID(context.Background(), "d1")
	require.NoError(t, err)
	assert.Equal(t, "d1", byDriver)

	byUser, err := s.ResolveDriverID(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "d1", byUser)
}

func TestConcurrentLocationUpdates_IndexStaysConsistent(t *testing.T) {
	s := newTestStore()
	s.RegisterDriver(dispatchableDriver("d1", 28.6139, 77.2090, "SEDAN"))

	var wg sync.WaitGroup
	coords := [][2]float64{{28.6139, 77.2090}, {28.6340, 77.2310}, {28.6000, 77.1900}}
	for i := 0; i < 50; i++ {
		wg.Add(1)
		c := coords[i%len(coords)]
		go func(lat, lng float64) {
			defer wg.Done()
			_, _ = s.UpdateLocation("d1", lat, lng, nil, nil)
		}(c[0], c[1])
	}
	wg.Wait()

	rec, ok := s.Get("d1")
	require.True(t, ok)
	require.NotNil(t, rec.H3Index)

	s.cellMu.RLock()
	_, inCell := s.h3CellIndex[*rec.H3Index]["d1"]
	s.cellMu.RUnlock()
	assert.True(t, inCell)
}
