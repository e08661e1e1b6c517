// Package broker implements the MQTT-backed pub/sub transport (spec
// §4.7 "Broker transport"), wiring paho.mqtt.golang the way
// other_examples' MQTT client was configured: custom dialer timeouts,
// auto-reconnect, and QoS chosen per topic class.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/raahi/dispatch-core/internal/busevents"
	"github.com/raahi/dispatch-core/pkg/logger"
)

// QoS levels per spec §4.7: location is at-most-once, status/assignment/
// cancellation is at-least-once.
const (
	qosLocation = byte(0)
	qosDefault  = byte(1)
)

// LocationCache retains the last known driver location per topic so a new
// subscriber receives it immediately (spec §4.7 "Retained 'last known
// location'"). Backed by Redis in production; here it's an interface so
// the transport doesn't hardcode a particular client.
type LocationCache interface {
	Set(ctx context.Context, driverID string, payload []byte) error
	Get(ctx context.Context, driverID string) ([]byte, bool, error)
}

// Transport implements busevents.RealtimeTransport over MQTT.
type Transport struct {
	client mqtt.Client
	cache  LocationCache
	bus    *busevents.Bus // re-emits driver-location topic messages into the bus (spec §4.7)

	mu          sync.RWMutex
	subscribers map[string]map[string]struct{} // topic -> set<subscriberId>, tracked for GetChannelSize only

	healthy atomicBool
}

type atomicBool struct {
	mu sync.RWMutex
	v  bool
}

func (a *atomicBool) set(v bool) { a.mu.Lock(); a.v = v; a.mu.Unlock() }
func (a *atomicBool) get() bool  { a.mu.RLock(); defer a.mu.RUnlock(); return a.v }

// New connects to brokerURL and returns a ready Transport. bus is used to
// re-emit inbound driver-location messages so SSE subscribers also
// receive them (spec §4.7).
func New(brokerURL, clientID string, bus *busevents.Bus, cache LocationCache) (*Transport, error) {
	t := &Transport{
		cache:       cache,
		bus:         bus,
		subscribers: make(map[string]map[string]struct{}),
	}

	opts := mqtt.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID(clientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectTimeout(5 * time.Second).
		SetMaxReconnectInterval(10 * time.Second).
		SetKeepAlive(15 * time.Second).
		SetOrderMatters(false).
		SetOnConnectHandler(func(mqtt.Client) {
			t.healthy.set(true)
			logger.Info("mqtt broker connected", zap.String("broker", brokerURL))
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			t.healthy.set(false)
			logger.Warn("mqtt broker connection lost", zap.Error(err))
		})

	t.client = mqtt.NewClient(opts)
	token := t.client.Connect()
	if !token.WaitTimeout(10*time.Second) || token.Error() != nil {
		return nil, fmt.Errorf("connect mqtt broker: %w", token.Error())
	}

	if err := t.subscribeInbound(); err != nil {
		return nil, err
	}
	return t, nil
}

// Name identifies this transport.
func (t *Transport) Name() string { return "broker" }

// subscribeInbound wires the driver-location topic wildcard back into the
// EventBus (spec §4.7 "Published messages on driver-location topics are
// re-emitted into the EventBus").
func (t *Transport) subscribeInbound() error {
	token := t.client.Subscribe("raahi/driver/+/location", qosLocation, func(_ mqtt.Client, msg mqtt.Message) {
		var payload busevents.DriverLocationPayload
		if err := json.Unmarshal(msg.Payload(), &payload); err != nil {
			logger.Warn("broker received malformed location payload", zap.Error(err))
			return
		}
		if t.cache != nil {
			_ = t.cache.Set(context.Background(), payload.DriverID, msg.Payload())
		}
		t.bus.Publish(busevents.DriverChannel(payload.DriverID), busevents.Event{
			Kind:    busevents.KindDriverLocation,
			Payload: payload,
		})
	})
	if !token.WaitTimeout(5*time.Second) || token.Error() != nil {
		return fmt.Errorf("subscribe driver location wildcard: %w", token.Error())
	}
	return nil
}

// topicsFor maps a channel name to its MQTT topic family (spec §4.7
// "Topic hierarchy mirrors channel names"). The broker MAY expand
// ride:<id> to its family of topics.
func topicsFor(channel string, kind busevents.Kind) []string {
	switch {
	case hasPrefix(channel, "ride:"):
		id := channel[len("ride:"):]
		switch kind {
		case busevents.KindDriverLocation:
			return []string{"raahi/ride/" + id + "/location"}
		case busevents.KindRideChatMessage:
			return []string{"raahi/ride/" + id + "/chat"}
		default:
			return []string{"raahi/ride/" + id + "/status"}
		}
	case hasPrefix(channel, "driver:"):
		id := channel[len("driver:"):]
		if kind == busevents.KindDriverLocation {
			return []string{"raahi/driver/" + id + "/location"}
		}
		return []string{"raahi/driver/" + id + "/events"}
	case hasPrefix(channel, "h3:"):
		cell := channel[len("h3:"):]
		return []string{"raahi/h3/" + cell + "/requests"}
	case channel == busevents.ChannelAvailableDrivers:
		return []string{"raahi/broadcast/rides"}
	default:
		return []string{"raahi/broadcast/" + channel}
	}
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

func qosFor(kind busevents.Kind) byte {
	if kind == busevents.KindDriverLocation {
		return qosLocation
	}
	return qosDefault
}

// Deliver implements busevents.RealtimeTransport: publishes event on every
// MQTT topic the channel maps to. Publish failures are logged, never
// propagated (spec §4.7, §7).
func (t *Transport) Deliver(channel string, event busevents.Event) {
	data, err := json.Marshal(event.Payload)
	if err != nil {
		logger.Warn("broker failed to marshal event payload", zap.String("channel", channel), zap.Error(err))
		return
	}

	qos := qosFor(event.Kind)
	for _, topic := range topicsFor(channel, event.Kind) {
		retained := event.Kind == busevents.KindDriverLocation
		token := t.client.Publish(topic, qos, retained, data)
		go func(topic string, token mqtt.Token) {
			if !token.WaitTimeout(5*time.Second) || token.Error() != nil {
				logger.Warn("broker publish failed", zap.String("topic", topic), zap.Error(token.Error()))
			}
		}(topic, token)
	}
}

// GetChannelSize is best-effort for MQTT: the broker itself tracks real
// subscriber counts, which paho's client API does not expose, so this
// reports locally-tracked interest registered via TrackSubscriber.
func (t *Transport) GetChannelSize(channel string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.subscribers[channel])
}

// TrackSubscriber records that subscriberID is interested in channel, for
// GetChannelSize accounting (the MQTT broker itself, not this process,
// tracks real topic subscriptions).
func (t *Transport) TrackSubscriber(channel, subscriberID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	set, ok := t.subscribers[channel]
	if !ok {
		set = make(map[string]struct{})
		t.subscribers[channel] = set
	}
	set[subscriberID] = struct{}{}
}

// IsHealthy reports the current MQTT connection state.
func (t *Transport) IsHealthy() bool { return t.healthy.get() }

// Close disconnects from the broker.
func (t *Transport) Close() {
	t.client.Disconnect(250)
}
