package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/raahi/dispatch-core/internal/apperrors"
	"github.com/raahi/dispatch-core/internal/dispatcher"
	"github.com/raahi/dispatch-core/internal/driverstore"
	"github.com/raahi/dispatch-core/internal/geo"
	"github.com/raahi/dispatch-core/internal/notify"
	"github.com/raahi/dispatch-core/internal/ridestore"
)

// RidesHandler implements the inbound REST surface named in spec §6,
// grounded on the teacher's internal/realtime.Handler gin-handler shape
// (one receiver method per route, apperrors mapped through respondError).
type RidesHandler struct {
	dispatcher *dispatcher.Dispatcher
	drivers    *driverstore.Store
	rides      *ridestore.Store
	webhook    *notify.WebhookNotifier
	collab     *notify.CollabBus
}

// NewRidesHandler wires the dispatcher and the two outbound notification
// channels (spec §6 "Outbound").
func NewRidesHandler(d *dispatcher.Dispatcher, drivers *driverstore.Store, rides *ridestore.Store, webhook *notify.WebhookNotifier, collab *notify.CollabBus) *RidesHandler {
	return &RidesHandler{dispatcher: d, drivers: drivers, rides: rides, webhook: webhook, collab: collab}
}

type createRideRequest struct {
	PickupLat     float64               `json:"pickupLat" binding:"required"`
	PickupLng     float64               `json:"pickupLng" binding:"required"`
	PickupAddress string                `json:"pickupAddress"`
	DropLat       float64               `json:"dropLat" binding:"required"`
	DropLng       float64               `json:"dropLng" binding:"required"`
	DropAddress   string                `json:"dropAddress"`
	VehicleType   string                `json:"vehicleType" binding:"required"`
	PaymentMethod string                `json:"paymentMethod"`
	Fare          ridestore.FareBreakdown `json:"fare" binding:"required"`
	Distance      float64               `json:"distance"`
	Duration      float64               `json:"duration"`
}

// CreateRide handles POST /rides (spec §6).
func (h *RidesHandler) CreateRide(c *gin.Context) {
	var req createRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	if _, ok := h.rides.GetPassengerActiveRide(passengerID(c)); ok {
		respondError(c, apperrors.Conflict("passenger already has an active ride"))
		return
	}

	rec, err := h.dispatcher.CreateRide(dispatcher.CreateRideInput{
		PassengerID:   passengerID(c),
		PickupLat:     req.PickupLat,
		PickupLng:     req.PickupLng,
		PickupAddress: req.PickupAddress,
		DropLat:       req.DropLat,
		DropLng:       req.DropLng,
		DropAddress:   req.DropAddress,
		VehicleType:   req.VehicleType,
		PaymentMethod: req.PaymentMethod,
		Fare:          req.Fare,
		Distance:      req.Distance,
		Duration:      req.Duration,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, rec)
}

// AcceptRide handles POST /rides/:id/accept (spec §6).
func (h *RidesHandler) AcceptRide(c *gin.Context) {
	rec, err := h.dispatcher.AcceptRide(c.Param("id"), driverID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	h.webhook.Notify(notify.TransitionPayloadFromRecord(rec))
	h.collab.PublishRideStatusChanged(rec)
	c.JSON(http.StatusOK, rec)
}

type startRideRequest struct {
	Otp string `json:"otp" binding:"required"`
}

// StartRide handles POST /rides/:id/start (spec §6).
func (h *RidesHandler) StartRide(c *gin.Context) {
	var req startRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	rec, err := h.dispatcher.StartRide(c.Param("id"), driverID(c), req.Otp)
	if err != nil {
		respondError(c, err)
		return
	}
	h.webhook.Notify(notify.TransitionPayloadFromRecord(rec))
	h.collab.PublishRideStatusChanged(rec)
	c.JSON(http.StatusOK, rec)
}

type statusTransitionRequest struct {
	Status ridestore.Status `json:"status" binding:"required"`
	Reason string           `json:"reason"`
	Otp    string           `json:"otp"`
}

// UpdateStatus handles PUT /rides/:id/status, the generic transition
// endpoint (spec §6) covering transitions not otherwise named by a
// dedicated route (e.g. DRIVER_ASSIGNED -> CONFIRMED -> DRIVER_ARRIVED).
func (h *RidesHandler) UpdateStatus(c *gin.Context) {
	var req statusTransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	actor := driverID(c)
	if actor == "" {
		actor = passengerID(c)
	}

	rec, err := h.rides.TransitionStatus(c.Param("id"), req.Status, actor, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	h.webhook.Notify(notify.TransitionPayloadFromRecord(rec))
	h.collab.PublishRideStatusChanged(rec)
	c.JSON(http.StatusOK, rec)
}

type cancelRideRequest struct {
	Reason string `json:"reason"`
}

// CancelRide handles POST /rides/:id/cancel (spec §6).
func (h *RidesHandler) CancelRide(c *gin.Context) {
	var req cancelRideRequest
	_ = c.ShouldBindJSON(&req)

	actor := driverID(c)
	if actor == "" {
		actor = passengerID(c)
	}

	rec, err := h.dispatcher.CancelRide(c.Param("id"), actor, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	h.webhook.Notify(notify.TransitionPayloadFromRecord(rec))
	h.collab.PublishRideStatusChanged(rec)
	c.JSON(http.StatusOK, rec)
}

type trackLocationRequest struct {
	Lat     float64  `json:"lat" binding:"required"`
	Lng     float64  `json:"lng" binding:"required"`
	Heading *float64 `json:"heading"`
	Speed   *float64 `json:"speed"`
}

// TrackRide handles POST /rides/:id/track, the driver's live location push
// during an active ride (spec §6).
func (h *RidesHandler) TrackRide(c *gin.Context) {
	var req trackLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	driver := driverID(c)
	if _, err := h.drivers.UpdateLocation(driver, req.Lat, req.Lng, req.Heading, req.Speed); err != nil {
		respondError(c, err)
		return
	}
	rec, err := h.rides.UpdateRideLocation(c.Param("id"), req.Lat, req.Lng, req.Heading, req.Speed)
	if err != nil {
		respondError(c, err)
		return
	}
	h.collab.PublishDriverLocation(notify.DriverLocationEvent{DriverID: driver, Lat: req.Lat, Lng: req.Lng})
	c.JSON(http.StatusOK, rec)
}

// GetRide handles GET /rides/:id. The OTP field is only visible to the
// passenger (spec §8 invariant 6) — a driver-authenticated read gets the
// redacted record.
func (h *RidesHandler) GetRide(c *gin.Context) {
	rec, err := h.rides.GetRide(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if passengerID(c) == "" || rec.PassengerID != passengerID(c) {
		rec = rec.Redacted()
	}
	c.JSON(http.StatusOK, rec)
}

// AvailableRides handles GET /rides/available?lat&lng&radius, the driver
// poll fallback when no transport connection is live (spec §6).
func (h *RidesHandler) AvailableRides(c *gin.Context) {
	lat, err := strconv.ParseFloat(c.Query("lat"), 64)
	if err != nil {
		badRequest(c, "lat must be a number")
		return
	}
	lng, err := strconv.ParseFloat(c.Query("lng"), 64)
	if err != nil {
		badRequest(c, "lng must be a number")
		return
	}
	radiusKm := 10.0
	if r := c.Query("radius"); r != "" {
		if parsed, err := strconv.ParseFloat(r, 64); err == nil {
			radiusKm = parsed
		}
	}

	pending := h.rides.GetPendingRides()
	out := make([]ridestore.Record, 0, len(pending))
	for _, rec := range pending {
		if geo.HaversineKm(lat, lng, rec.PickupLat, rec.PickupLng) <= radiusKm {
			out = append(out, rec.Redacted())
		}
	}
	c.JSON(http.StatusOK, out)
}
