package notify

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raahi/dispatch-core/internal/ridestore"
)

func TestWebhookNotifier_DeliversPostedPayload(t *testing.T) {
	var received atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body TransitionPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		received.Store(body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, time.Second)
	n.Notify(TransitionPayload{RideID: "r1", Status: "RIDE_COMPLETED"})

	require.Eventually(t, func() bool {
		v, ok := received.Load().(TransitionPayload)
		return ok && v.RideID == "r1"
	}, time.Second, 10*time.Millisecond)
}

func TestWebhookNotifier_EmptyURLIsNoOp(t *testing.T) {
	n := NewWebhookNotifier("", time.Second)
	assert.NotPanics(t, func() {
		n.Notify(TransitionPayload{RideID: "r1"})
	})
}

func TestWebhookNotifier_NilReceiverIsNoOp(t *testing.T) {
	var n *WebhookNotifier
	assert.NotPanics(t, func() {
		n.Notify(TransitionPayload{RideID: "r1"})
	})
}

func TestTransitionPayloadFromRecord_CopiesIdentifiers(t *testing.T) {
	rec := ridestore.Record{RideID: "r1", DriverID: "d1", PassengerID: "p1", Status: ridestore.StatusRideCompleted}

	payload := TransitionPayloadFromRecord(rec)

	assert.Equal(t, "r1", payload.RideID)
	assert.Equal(t, "d1", payload.DriverID)
	assert.Equal(t, "p1", payload.PassengerID)
	assert.Equal(t, "RIDE_COMPLETED", payload.Status)
}
