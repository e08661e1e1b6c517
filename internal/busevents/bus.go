package busevents

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/raahi/dispatch-core/pkg/logger"
	"go.uber.org/zap"
)

// RealtimeTransport is the shared contract every transport implements
// (spec §4.7): name, delivery, queue depth, and health.
type RealtimeTransport interface {
	Name() string
	Deliver(channel string, event Event)
	GetChannelSize(channel string) int
	IsHealthy() bool
}

// Metrics tracks publish/delivery counters for the bus, mirroring the
// teacher's promauto-based DBMetrics in pkg/database/postgres.go.
type Metrics struct {
	publishes        *prometheus.CounterVec
	deliveryFailures *prometheus.CounterVec
	listeners        *prometheus.GaugeVec
}

func newMetrics() *Metrics {
	return &Metrics{
		publishes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_eventbus_publishes_total",
			Help: "Total events published to the in-process event bus.",
		}, []string{"kind"}),
		deliveryFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_eventbus_delivery_failures_total",
			Help: "Total transport delivery failures, isolated per transport.",
		}, []string{"transport"}),
		listeners: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dispatch_eventbus_channel_listeners",
			Help: "Last observed listener count for a channel, per transport.",
		}, []string{"transport", "channel"}),
	}
}

// Bus is the dispatch core's EventBus (component C3). Publish is synchronous
// from the caller's point of view: every registered transport's Deliver is
// invoked before Publish returns, and a panic or error in one transport must
// never prevent the others from being called.
type Bus struct {
	mu         sync.RWMutex
	transports []RealtimeTransport
	metrics    *Metrics
}

// New constructs an empty Bus. Transports register at wire-up time in
// cmd/dispatchd/main.go rather than via import-order side effects (spec §9
// design note on singletons).
func New() *Bus {
	return &Bus{metrics: newMetrics()}
}

// RegisterTransport adds a transport to the fan-out set.
func (b *Bus) RegisterTransport(t RealtimeTransport) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transports = append(b.transports, t)
}

// Publish delivers event on channel to every registered transport. A
// transport that panics during delivery is recovered and counted as a
// failure; it never prevents delivery to the remaining transports.
func (b *Bus) Publish(channel string, event Event) {
	event.Channel = channel
	b.metrics.publishes.WithLabelValues(string(event.Kind)).Inc()

	b.mu.RLock()
	transports := make([]RealtimeTransport, len(b.transports))
	copy(transports, b.transports)
	b.mu.RUnlock()

	for _, t := range transports {
		b.deliverSafely(t, channel, event)
	}
}

// PublishToMany delivers the same event to every channel in channels.
func (b *Bus) PublishToMany(channels []string, event Event) {
	for _, ch := range channels {
		b.Publish(ch, event)
	}
}

func (b *Bus) deliverSafely(t RealtimeTransport, channel string, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.metrics.deliveryFailures.WithLabelValues(t.Name()).Inc()
			logger.Error("transport delivery panicked",
				zap.String("transport", t.Name()),
				zap.String("channel", channel),
				zap.Any("recovered", r),
			)
		}
	}()
	t.Deliver(channel, event)
}

// GetTotalListeners sums getChannelSize across every registered transport
// for the given channel.
func (b *Bus) GetTotalListeners(channel string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	total := 0
	for _, t := range b.transports {
		size := t.GetChannelSize(channel)
		total += size
		b.metrics.listeners.WithLabelValues(t.Name(), channel).Set(float64(size))
	}
	return total
}

// GetMetrics returns per-transport health, keyed by transport name.
func (b *Bus) GetMetrics() map[string]bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make(map[string]bool, len(b.transports))
	for _, t := range b.transports {
		out[t.Name()] = t.IsHealthy()
	}
	return out
}

// Transports returns a snapshot of the registered transports.
func (b *Bus) Transports() []RealtimeTransport {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]RealtimeTransport, len(b.transports))
	copy(out, b.transports)
	return out
}
