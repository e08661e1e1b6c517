// Package notify implements the core's two outbound channels to external
// collaborators (spec §6 "Outbound"): a fire-and-forget notification
// webhook and a durable-write event bus, both grounded on the teacher's
// pkg/httpclient and pkg/eventbus.
package notify

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/raahi/dispatch-core/internal/ridestore"
	"github.com/raahi/dispatch-core/pkg/async"
	"github.com/raahi/dispatch-core/pkg/httpclient"
	"github.com/raahi/dispatch-core/pkg/logger"
	"github.com/raahi/dispatch-core/pkg/resilience"
)

// TransitionPayload is the body posted to the notification webhook on
// terminal and key intermediate transitions (spec §6).
type TransitionPayload struct {
	RideID      string    `json:"rideId"`
	DriverID    string    `json:"driverId,omitempty"`
	PassengerID string    `json:"passengerId"`
	Status      string    `json:"status"`
	OccurredAt  time.Time `json:"occurredAt"`
}

// WebhookNotifier posts ride-transition events to an external
// notification-service URL. Delivery is fire-and-forget (spec §6): a
// failed POST is logged, never surfaced to the dispatch flow that
// triggered it, and never retried beyond the circuit breaker's own
// half-open probes.
type WebhookNotifier struct {
	client  *httpclient.Client
	url     string
	breaker *resilience.CircuitBreaker
}

// NewWebhookNotifier builds a notifier posting to targetURL. An empty
// targetURL disables delivery (Notify becomes a no-op), matching a
// deployment with no notification-service configured.
func NewWebhookNotifier(targetURL string, timeout time.Duration) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookNotifier{
		client: httpclient.NewClient("", timeout),
		url:    targetURL,
		breaker: resilience.NewCircuitBreaker(resilience.Settings{
			Name:             "notify-webhook",
			Interval:         time.Minute,
			Timeout:          30 * time.Second,
			FailureThreshold: 5,
		}, nil),
	}
}

// Notify posts payload to the configured URL in its own goroutine and
// returns immediately, matching spec §6's "fire-and-forget" wording.
func (n *WebhookNotifier) Notify(payload TransitionPayload) {
	if n == nil || n.url == "" {
		return
	}
	async.GoWithTimeout(context.Background(), "notify-webhook-deliver", 5*time.Second, func(ctx context.Context) {
		n.deliver(ctx, payload)
	})
}

func (n *WebhookNotifier) deliver(ctx context.Context, payload TransitionPayload) {
	_, err := n.breaker.Execute(ctx, func(ctx context.Context) (interface{}, error) {
		return n.client.Post(ctx, n.url, payload, nil)
	})
	if err != nil {
		logger.Warn("notification webhook delivery failed",
			zap.String("rideId", payload.RideID),
			zap.String("status", payload.Status),
			zap.Error(err),
		)
	}
}

// TransitionPayloadFromRecord builds the webhook body for a ride at its
// current status.
func TransitionPayloadFromRecord(rec ridestore.Record) TransitionPayload {
	return TransitionPayload{
		RideID:      rec.RideID,
		DriverID:    rec.DriverID,
		PassengerID: rec.PassengerID,
		Status:      string(rec.Status),
		OccurredAt:  time.Now().UTC(),
	}
}
