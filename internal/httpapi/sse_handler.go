package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/raahi/dispatch-core/internal/apperrors"
	"github.com/raahi/dispatch-core/internal/busevents"
	"github.com/raahi/dispatch-core/internal/driverstore"
	"github.com/raahi/dispatch-core/internal/geo"
	"github.com/raahi/dispatch-core/internal/transport/sse"
)

// SSEHandler implements the server-push event-stream routes (spec §4.7,
// §6): one long-lived HTTP response per connection, written frame-by-frame
// as the Manager delivers events.
type SSEHandler struct {
	manager  *sse.Manager
	drivers  *driverstore.Store
	geoIndex *geo.Index
	maxK     int
}

// NewSSEHandler wires the SSE manager to RAMEN for h3-cell subscription
// resolution on connect.
func NewSSEHandler(manager *sse.Manager, drivers *driverstore.Store, geoIndex *geo.Index, maxK int) *SSEHandler {
	return &SSEHandler{manager: manager, drivers: drivers, geoIndex: geoIndex, maxK: maxK}
}

// RideStream handles GET /sse/ride/:id: subscribes the connection to the
// ride's channel only.
func (h *SSEHandler) RideStream(c *gin.Context) {
	rideID := c.Param("id")
	client := h.manager.Connect(clientIDFor(c), busevents.RideChannel(rideID))
	h.stream(c, client)
}

// DriverStream handles GET /sse/driver/:id?lat&lng: subscribes the
// connection to the driver's own channel, the available-drivers broadcast
// channel, and the h3 k-ring cells around the supplied position (spec §4.7
// "on connect subscribe to driver:<id>, available-drivers, and h3:<cell>
// for each cell in kRing(encode(lat,lng), maxK)").
func (h *SSEHandler) DriverStream(c *gin.Context) {
	id := c.Param("id")
	channels := []string{busevents.DriverChannel(id), busevents.ChannelAvailableDrivers}

	lat, latErr := strconv.ParseFloat(c.Query("lat"), 64)
	lng, lngErr := strconv.ParseFloat(c.Query("lng"), 64)
	if latErr == nil && lngErr == nil {
		cell := h.geoIndex.Encode(lat, lng)
		for _, cellID := range h.geoIndex.KRing(cell, h.maxK) {
			channels = append(channels, busevents.H3Channel(cellID))
		}
	}

	client := h.manager.Connect(clientIDFor(c), channels...)
	h.stream(c, client)
}

// UpdateDriverSubscription handles PATCH /sse/driver/:id/location: rebinds
// the connection's h3 subscriptions to the cells around a new position
// without tearing down the SSE stream (spec §4.7 "H3 subscription churn").
func (h *SSEHandler) UpdateDriverSubscription(c *gin.Context) {
	var req trackLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	rec, ok := h.drivers.Get(c.Param("id"))
	oldCells := []string{}
	if ok && rec.H3Index != nil {
		oldCells = h.geoIndex.KRing(*rec.H3Index, h.maxK)
	}

	newCell := h.geoIndex.Encode(req.Lat, req.Lng)
	newCells := h.geoIndex.KRing(newCell, h.maxK)

	h.manager.RebindH3Subscription(clientIDFor(c), toChannels(oldCells), toChannels(newCells))
	c.Status(http.StatusNoContent)
}

func toChannels(cells []string) []string {
	out := make([]string, len(cells))
	for i, cell := range cells {
		out[i] = busevents.H3Channel(cell)
	}
	return out
}

func clientIDFor(c *gin.Context) string {
	if id := driverID(c); id != "" {
		return "driver:" + id
	}
	if id := passengerID(c); id != "" {
		return "passenger:" + id
	}
	return c.ClientIP() + ":" + c.Param("id")
}

// stream writes SSE frames to the response as the manager delivers them,
// until the client disconnects. Grounded on the standard net/http flusher
// pattern; gin exposes it through c.Writer.
func (h *SSEHandler) stream(c *gin.Context, client *sse.Client) {
	defer h.manager.Disconnect(client.ID)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		respondError(c, apperrors.Internal("streaming unsupported", nil))
		return
	}

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case frame, open := <-client.Frames:
			if !open {
				return
			}
			if err := sse.WriteFrame(c.Writer, frame); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
