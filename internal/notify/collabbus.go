package notify

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/raahi/dispatch-core/internal/ridestore"
	"github.com/raahi/dispatch-core/pkg/async"
	"github.com/raahi/dispatch-core/pkg/eventbus"
	"github.com/raahi/dispatch-core/pkg/logger"
)

// Outbound collaborator subjects (spec §6 "Outbound ... durable store
// write fan-out"), namespaced under the JetStream stream's existing
// rides./drivers./payments. wildcard subjects. These are independent of
// busevents' in-process channel names — this bus crosses process
// boundaries.
const (
	SubjectRideStatusChanged = "rides.status_changed"
	SubjectDriverLocation    = "drivers.location"
	SubjectEarningsReady     = "payments.earnings_ready"
)

// CollabBus publishes durable-write events to external collaborators
// (driver-service, notification-service, earnings) over NATS JetStream,
// grounded on the teacher's pkg/eventbus.Bus. It is deliberately separate
// from busevents.Bus (C3): that bus fans events out to transports inside
// this process, this one crosses the process boundary.
type CollabBus struct {
	bus *eventbus.Bus
}

// NewCollabBus connects to NATS and ensures the JetStream stream exists.
func NewCollabBus(cfg eventbus.Config) (*CollabBus, error) {
	bus, err := eventbus.New(cfg)
	if err != nil {
		return nil, err
	}
	return &CollabBus{bus: bus}, nil
}

// Close drains and closes the underlying NATS connection.
func (c *CollabBus) Close() {
	if c == nil || c.bus == nil {
		return
	}
	c.bus.Close()
}

// PublishRideStatusChanged announces a durable ride-status write, the
// event the earnings and notification collaborators subscribe to (spec
// §4.8 "the durable earnings record is written by an external earnings
// collaborator receiving the status-change DB write").
func (c *CollabBus) PublishRideStatusChanged(rec ridestore.Record) {
	if c == nil || c.bus == nil {
		return
	}
	event, err := eventbus.NewEvent(SubjectRideStatusChanged, "dispatch-core", TransitionPayloadFromRecord(rec))
	if err != nil {
		logger.Warn("collab bus event build failed", zap.Error(err))
		return
	}
	c.publishAsync(SubjectRideStatusChanged, event)
}

// DriverLocationEvent is the payload published on every location update
// handed to the driver-service collaborator for its own durable record.
type DriverLocationEvent struct {
	DriverID string  `json:"driverId"`
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
	H3Index  string  `json:"h3Index"`
}

// PublishDriverLocation announces a driver location write.
func (c *CollabBus) PublishDriverLocation(payload DriverLocationEvent) {
	if c == nil || c.bus == nil {
		return
	}
	event, err := eventbus.NewEvent(SubjectDriverLocation, "dispatch-core", payload)
	if err != nil {
		logger.Warn("collab bus event build failed", zap.Error(err))
		return
	}
	c.publishAsync(SubjectDriverLocation, event)
}

func (c *CollabBus) publishAsync(subject string, event *eventbus.Event) {
	async.GoWithTimeout(context.Background(), "collab-bus-publish-"+subject, 5*time.Second, func(ctx context.Context) {
		if err := c.bus.Publish(ctx, subject, event); err != nil {
			logger.Warn("collab bus publish failed", zap.String("subject", subject), zap.Error(err))
		}
	})
}
