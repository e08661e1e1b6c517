package busevents

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTransport struct {
	name      string
	mu        sync.Mutex
	received  []Event
	panicOn   bool
	healthy   bool
	chanSize  int
}

func (f *fakeTransport) Name() string { return f.name }

func (f *fakeTransport) Deliver(channel string, event Event) {
	if f.panicOn {
		panic("boom")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.received = append(f.received, event)
}

func (f *fakeTransport) GetChannelSize(channel string) int { return f.chanSize }
func (f *fakeTransport) IsHealthy() bool                   { return f.healthy }

func (f *fakeTransport) snapshot() []Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Event, len(f.received))
	copy(out, f.received)
	return out
}

func TestBus_PublishDeliversToAllTransports(t *testing.T) {
	bus := New()
	a := &fakeTransport{name: "a", healthy: true, chanSize: 1}
	b := &fakeTransport{name: "b", healthy: true, chanSize: 1}
	bus.RegisterTransport(a)
	bus.RegisterTransport(b)

	bus.Publish(RideChannel("r1"), Event{Kind: KindRideStatusUpdate, Payload: "x"})

	require.Len(t, a.snapshot(), 1)
	require.Len(t, b.snapshot(), 1)
	assert.Equal(t, "ride:r1", a.snapshot()[0].Channel)
}

func TestBus_OneTransportPanicDoesNotBlockOthers(t *testing.T) {
	bus := New()
	broken := &fakeTransport{name: "broken", panicOn: true, healthy: true}
	ok := &fakeTransport{name: "ok", healthy: true}
	bus.RegisterTransport(broken)
	bus.RegisterTransport(ok)

	assert.NotPanics(t, func() {
		bus.Publish(ChannelAvailableDrivers, Event{Kind: KindNewRideRequest})
	})
	assert.Len(t, ok.snapshot(), 1)
}

func TestBus_GetTotalListeners(t *testing.T) {
	bus := New()
	bus.RegisterTransport(&fakeTransport{name: "a", chanSize: 3, healthy: true})
	bus.RegisterTransport(&fakeTransport{name: "b", chanSize: 2, healthy: true})

	assert.Equal(t, 5, bus.GetTotalListeners("driver-locations"))
}

func TestBus_GetMetrics(t *testing.T) {
	bus := New()
	bus.RegisterTransport(&fakeTransport{name: "a", healthy: true})
	bus.RegisterTransport(&fakeTransport{name: "b", healthy: false})

	metrics := bus.GetMetrics()
	assert.True(t, metrics["a"])
	assert.False(t, metrics["b"])
}
