package statesync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raahi/dispatch-core/internal/ridestore"
	"github.com/raahi/dispatch-core/internal/storage"
)

func TestCoalesceDriverWrites_KeepsLatestLocationPerDriver(t *testing.T) {
	writes := []storage.PendingWrite{
		{EntityID: "d1", Operation: storage.OpLocationUpdate, Payload: 1},
		{EntityID: "d1", Operation: storage.OpLocationUpdate, Payload: 2},
		{EntityID: "d2", Operation: storage.OpLocationUpdate, Payload: 3},
	}

	out := coalesceDriverWrites(writes)

	require.Len(t, out, 2)
	byDriver := make(map[string]storage.PendingWrite)
	for _, w := range out {
		byDriver[w.EntityID] = w
	}
	assert.Equal(t, 2, byDriver["d1"].Payload)
	assert.Equal(t, 3, byDriver["d2"].Payload)
}

func TestCoalesceDriverWrites_PreservesNonLocationWrites(t *testing.T) {
	writes := []storage.PendingWrite{
		{EntityID: "d1", Operation: storage.OpCreate},
		{EntityID: "d1", Operation: storage.OpStatusChange},
		{EntityID: "d1", Operation: storage.OpLocationUpdate, Payload: "latest"},
	}

	out := coalesceDriverWrites(writes)

	require.Len(t, out, 3)
	var sawCreate, sawStatus bool
	for _, w := range out {
		switch w.Operation {
		case storage.OpCreate:
			sawCreate = true
		case storage.OpStatusChange:
			sawStatus = true
		}
	}
	assert.True(t, sawCreate)
	assert.True(t, sawStatus)
}

func TestRetryOrDrop_RequeuesBelowLimit(t *testing.T) {
	queue := storage.NewQueue(10)
	s := &Sync{cfg: Config{MaxRetries: 3}}

	s.retryOrDrop(storage.PendingWrite{EntityID: "r1", RetryCount: 0}, assertError(), queue)

	require.Eventually(t, func() bool { return queue.Len() == 1 }, time.Second, 5*time.Millisecond)
}

func TestRetryOrDrop_DropsAtLimit(t *testing.T) {
	queue := storage.NewQueue(10)
	s := &Sync{cfg: Config{MaxRetries: 3}}

	s.retryOrDrop(storage.PendingWrite{EntityID: "r1", RetryCount: 2}, assertError(), queue)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, queue.Len())
}

func TestNew_DefaultsMaxRetries(t *testing.T) {
	s := New(Config{}, nil, nil, storage.NewQueue(1), storage.NewQueue(1), nil, nil, nil)
	assert.Equal(t, 3, s.cfg.MaxRetries)
}

func TestEarningsFromRecord_AppliesCommissionRate(t *testing.T) {
	rec := ridestore.Record{RideID: "r1", DriverID: "d1", Fare: ridestore.FareBreakdown{Total: 100}}

	row := earningsFromRecord(rec, 0.2)

	assert.Equal(t, 20.0, row.Commission)
	assert.Equal(t, 80.0, row.NetAmount)
}

type staticErr struct{ msg string }

func (e staticErr) Error() string { return e.msg }

func assertError() error { return staticErr{"flush failed"} }
